// Package httpapi is the REST adapter boundary for this toolkit: a thin
// net/http.ServeMux translating JSON requests into pkg/connmgr, pkg/isotp,
// and pkg/profile calls.
package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flapvw/vlinker-go/pkg/audit"
	"github.com/flapvw/vlinker-go/pkg/connmgr"
	"github.com/flapvw/vlinker-go/pkg/profile"
)

// Server wires the connection manager and profile registry to a ServeMux.
// Audit, when set, receives a fire-and-forget entry for every destructive
// operation served.
type Server struct {
	Manager  *connmgr.Manager
	Registry *profile.Registry
	Audit    *audit.Writer
	logger   *slog.Logger
	mux      *http.ServeMux
}

// NewServer builds a Server with every route registered. A nil logger
// falls back to slog.Default().
func NewServer(mgr *connmgr.Manager, registry *profile.Registry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("service", "[HTTP]")

	s := &Server{Manager: mgr, Registry: registry, logger: logger}
	s.mux = http.NewServeMux()

	s.mux.HandleFunc("/api/health", s.handleHealth)
	s.mux.HandleFunc("/api/serial/connect", s.handleConnect)
	s.mux.HandleFunc("/api/serial/disconnect", s.handleDisconnect)
	s.mux.HandleFunc("/api/serial/status", s.handleStatus)
	s.mux.HandleFunc("/api/diag/discover", s.handleDiscover)
	s.mux.HandleFunc("/api/diag/read_dtcs", s.handleReadDTCs)
	s.mux.HandleFunc("/api/diag/clear_dtcs", s.handleClearDTCs)
	s.mux.HandleFunc("/api/diag/read_measures", s.handleReadMeasures)
	s.mux.HandleFunc("/api/sim/frames", s.handleSimFrames)
	s.mux.HandleFunc("/api/sim/reassemble", s.handleSimReassemble)
	s.mux.HandleFunc("/api/profile/build", s.handleProfileBuild)
	s.mux.HandleFunc("/api/profile/list", s.handleProfileList)
	s.mux.Handle("/metrics", promhttp.Handler())

	s.logger.Info("routes registered")
	return s
}

// ServeHTTP makes Server an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe blocks serving addr.
func (s *Server) ListenAndServe(addr string) error {
	return http.ListenAndServe(addr, s.mux)
}
