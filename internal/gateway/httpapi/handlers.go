package httpapi

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/flapvw/vlinker-go/pkg/capture"
	"github.com/flapvw/vlinker-go/pkg/isotp"
	"github.com/flapvw/vlinker-go/pkg/profile"
	"github.com/flapvw/vlinker-go/pkg/protocol"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &ValidationError{Message: fmt.Sprintf("invalid request body: %v", err)}
	}
	return nil
}

func queryBool(r *http.Request, key string) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get(key))
	return v
}

func (s *Server) auditRecord(action string, details map[string]any) {
	if s.Audit != nil {
		s.Audit.Record(action, details)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Device == "" {
		writeError(w, &ValidationError{Message: "device is required"})
		return
	}
	baud := req.Baud
	if baud == 0 {
		baud = 115200
	}
	if err := s.Manager.Connect(req.Device, baud); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, connectResponse{Connected: true, Device: req.Device})
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if err := s.Manager.Disconnect(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, connectResponse{Connected: false})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.Manager.Status()
	writeJSON(w, http.StatusOK, statusResponse{Connected: st.Connected, Device: st.Device})
}

func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	if queryBool(r, "use_simulator") {
		writeJSON(w, http.StatusOK, discoverResponse{ECUs: simulatedECUs})
		return
	}
	st := s.Manager.Status()
	if !st.Connected {
		writeError(w, &ValidationError{Message: "not connected"})
		return
	}
	writeJSON(w, http.StatusOK, discoverResponse{ECUs: []ecuInfo{{Name: "ECU", Addr: st.Device}}})
}

func dtcHex(raw []byte) string {
	return strings.ToUpper(hex.EncodeToString(raw))
}

func (s *Server) handleReadDTCs(w http.ResponseWriter, r *http.Request) {
	ecu := r.URL.Query().Get("ecu")
	if queryBool(r, "use_simulator") {
		writeJSON(w, http.StatusOK, readDTCsResponse{ECU: ecu, DTCs: simulatedDTCs})
		return
	}
	resp, err := s.Manager.ReadDTC()
	if err != nil {
		writeError(w, err)
		return
	}
	records := protocol.ParseUDSReadDTC(resp)
	dtcs := make([]string, 0, len(records))
	for _, rec := range records {
		dtcs = append(dtcs, dtcHex(rec.Raw))
	}
	writeJSON(w, http.StatusOK, readDTCsResponse{ECU: ecu, DTCs: dtcs})
}

func (s *Server) handleClearDTCs(w http.ResponseWriter, r *http.Request) {
	var req clearDTCsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if !req.Force {
		writeError(w, &ForbiddenError{Message: "clear_dtcs requires force=true"})
		return
	}
	if req.UseSimulator {
		writeJSON(w, http.StatusOK, clearDTCsResponse{ECU: req.ECU, Cleared: true, Result: "simulated"})
		return
	}
	resp, err := s.Manager.ClearDTC()
	if err != nil {
		writeError(w, err)
		return
	}
	s.auditRecord("clear_dtc", map[string]any{"ecu": req.ECU, "result": dtcHex(resp)})
	writeJSON(w, http.StatusOK, clearDTCsResponse{ECU: req.ECU, Cleared: true, Result: dtcHex(resp)})
}

func (s *Server) handleReadMeasures(w http.ResponseWriter, r *http.Request) {
	var req readMeasuresRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.UseSimulator {
		writeJSON(w, http.StatusOK, readMeasuresResponse{ECU: req.ECU, Measures: simulatedMeasures(req.PIDs)})
		return
	}
	measures, err := s.Manager.ReadMeasures(req.PIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make(map[string]any, len(measures))
	for _, m := range measures {
		if m.Err != nil {
			out[m.PID] = fmt.Sprintf("error: %v", m.Err)
			continue
		}
		out[m.PID] = m.Value
	}
	writeJSON(w, http.StatusOK, readMeasuresResponse{ECU: req.ECU, Measures: out})
}

func (s *Server) handleSimFrames(w http.ResponseWriter, r *http.Request) {
	payloadHex := r.URL.Query().Get("payload")
	payload, err := hex.DecodeString(payloadHex)
	if err != nil {
		writeError(w, &ValidationError{Message: fmt.Sprintf("invalid payload hex: %v", err)})
		return
	}
	mtu := 8
	if m := r.URL.Query().Get("mtu"); m != "" {
		v, cerr := strconv.Atoi(m)
		if cerr != nil {
			writeError(w, &ValidationError{Message: "invalid mtu"})
			return
		}
		mtu = v
	}
	frames, err := isotp.BuildFrames(payload, mtu)
	if err != nil {
		writeError(w, &ValidationError{Message: err.Error()})
		return
	}
	hexFrames := make([]string, len(frames))
	for i, f := range frames {
		hexFrames[i] = strings.ToUpper(hex.EncodeToString(f))
	}
	writeJSON(w, http.StatusOK, simFramesResponse{PayloadLen: len(payload), Frames: hexFrames})
}

func (s *Server) handleSimReassemble(w http.ResponseWriter, r *http.Request) {
	rawFrames := r.URL.Query()["frames"]
	frames := make([][]byte, 0, len(rawFrames))
	for _, fh := range rawFrames {
		f, err := hex.DecodeString(fh)
		if err != nil {
			writeError(w, &ValidationError{Message: fmt.Sprintf("invalid frame hex: %v", err)})
			return
		}
		frames = append(frames, f)
	}
	payload, err := isotp.Reassemble(frames)
	if err != nil {
		writeError(w, &ValidationError{Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, simReassembleResponse{
		PayloadHex: strings.ToUpper(hex.EncodeToString(payload)),
		Len:        len(payload),
	})
}

func (s *Server) handleProfileBuild(w http.ResponseWriter, r *http.Request) {
	var req profileBuildRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Path == "" || req.Name == "" {
		writeError(w, &ValidationError{Message: "path and name are required"})
		return
	}

	records, err := capture.Load(req.Path)
	if err != nil {
		writeError(w, &ValidationError{Message: fmt.Sprintf("reading capture: %v", err)})
		return
	}
	candidates := profile.Analyse(records)
	if len(candidates) == 0 {
		writeError(w, &ValidationError{Message: "no SecurityAccess seed found in capture"})
		return
	}
	candidate := candidates[0]

	var chosen *profile.Transform
	for i, tr := range candidate.Transforms {
		if tr.Name() == req.Algo {
			chosen = &candidate.Transforms[i]
			break
		}
	}
	if chosen == nil {
		writeError(w, &ValidationError{Message: fmt.Sprintf("unknown algo %q for this seed", req.Algo)})
		return
	}

	key := chosen.Apply(candidate.Seed)
	preview := fmt.Sprintf("seed=%s key=%s algo=%s", dtcHex(candidate.Seed), dtcHex(key), chosen.Name())

	resp := profileBuildResponse{Preview: preview, ProfilePath: s.Registry.Path}
	if req.DryRun {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	if _, exists, gerr := s.Registry.Get(req.Name); gerr != nil {
		writeError(w, gerr)
		return
	} else if exists && !req.Force {
		writeError(w, &ForbiddenError{Message: fmt.Sprintf("profile %q already exists; pass force=true to overwrite", req.Name)})
		return
	}

	if err := s.Registry.Put(profile.Profile{Name: req.Name, Transform: chosen}); err != nil {
		writeError(w, err)
		return
	}
	s.auditRecord("profile_write", map[string]any{"name": req.Name, "algo": chosen.Name()})
	resp.Written = true
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleProfileList(w http.ResponseWriter, r *http.Request) {
	profiles, err := s.Registry.Load()
	if err != nil {
		writeError(w, err)
		return
	}
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	writeJSON(w, http.StatusOK, profileListResponse{Profiles: names})
}
