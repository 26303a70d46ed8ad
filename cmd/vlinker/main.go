package main

import (
	"bufio"
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/flapvw/vlinker-go/internal/gateway/httpapi"
	"github.com/flapvw/vlinker-go/pkg/audit"
	"github.com/flapvw/vlinker-go/pkg/capture"
	"github.com/flapvw/vlinker-go/pkg/coding"
	"github.com/flapvw/vlinker-go/pkg/connmgr"
	"github.com/flapvw/vlinker-go/pkg/isotp"
	"github.com/flapvw/vlinker-go/pkg/profile"
	"github.com/flapvw/vlinker-go/pkg/protocol"
	"github.com/flapvw/vlinker-go/pkg/serial"
	"github.com/flapvw/vlinker-go/pkg/uds"
)

// Exit codes: 0 success, 1 detect found nothing, 2 argument errors and
// missing devices.
const (
	exitOK       = 0
	exitNotFound = 1
	exitUsage    = 2
)

const usage = `usage: vlinker <command> [args]

commands:
  list                         list candidate serial devices
  info                         show the device discovery decision
  detect                       probe for a responding adapter
  serve                        run the HTTP API
  serial  open|send-hex|at     raw serial access
  diag    scan|read-dtc|clear-dtc|measure|send-hex
  adv     req-seed|send-key|uds|coding|sec-access
  can     attach-slcan|attach-pycan
  capture start|parse
  profile analyze|build|interactive
`

func main() {
	log.SetLevel(log.InfoLevel)
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(exitUsage)
	}

	switch os.Args[1] {
	case "list":
		cmdList()
	case "info":
		cmdInfo()
	case "detect":
		cmdDetect()
	case "serve":
		cmdServe(os.Args[2:])
	case "serial":
		cmdSerial(os.Args[2:])
	case "diag":
		cmdDiag(os.Args[2:])
	case "adv":
		cmdAdv(os.Args[2:])
	case "can":
		cmdCan(os.Args[2:])
	case "capture":
		cmdCapture(os.Args[2:])
	case "profile":
		cmdProfile(os.Args[2:])
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(exitUsage)
	}
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(exitUsage)
}

// deviceFlag registers the shared -device flag on fs.
func deviceFlag(fs *flag.FlagSet) *string {
	return fs.String("device", "", "serial device node (default: auto-discover)")
}

func resolveDevice(device string) string {
	if device != "" {
		return device
	}
	dev := serial.DiscoverDevice()
	if dev == "" {
		fail("no serial device found (set %s or pass -device)", serial.EnvDevice)
	}
	return dev
}

func openStream(device string) *serial.DeviceStream {
	stream := serial.NewDeviceStream(resolveDevice(device), serial.DefaultOptions())
	if err := stream.Open(); err != nil {
		fail("open: %v", err)
	}
	return stream
}

func newClient(stream serial.Stream) *uds.Client {
	return uds.NewClient(isotp.NewEngine(stream, isotp.DefaultOptions()))
}

func cmdList() {
	devices := serial.ListDevices()
	for _, d := range devices {
		fmt.Println(d)
	}
	if len(devices) == 0 {
		fmt.Fprintln(os.Stderr, "no devices")
	}
}

func cmdInfo() {
	if dev := os.Getenv(serial.EnvDevice); dev != "" {
		fmt.Printf("device: %s (from %s)\n", dev, serial.EnvDevice)
		return
	}
	dev := serial.DiscoverDevice()
	if dev == "" {
		fmt.Println("device: none found")
		return
	}
	fmt.Printf("device: %s (auto-discovered)\n", dev)
}

func cmdDetect() {
	dev := serial.DiscoverDevice()
	if dev == "" {
		fmt.Println("no adapter found")
		os.Exit(exitNotFound)
	}
	stream := serial.NewDeviceStream(dev, serial.DefaultOptions())
	if err := stream.Open(); err != nil {
		fmt.Println("no adapter found")
		os.Exit(exitNotFound)
	}
	defer stream.Close()
	resp, err := serial.SendASCIILine(stream, "ATI")
	if err != nil || len(resp) == 0 {
		fmt.Println("no adapter found")
		os.Exit(exitNotFound)
	}
	fmt.Printf("%s: %s\n", dev, strings.TrimSpace(string(resp)))
}

func cmdServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", ":8090", "listen address")
	profiles := fs.String("profiles", "ecu_profiles.ini", "profile registry path")
	auditPath := fs.String("audit", "audit.log", "audit log path")
	fs.Parse(args)

	srv := httpapi.NewServer(connmgr.New(), profile.NewRegistry(*profiles), nil)
	if f, err := os.OpenFile(*auditPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err != nil {
		log.WithError(err).Warn("audit log unavailable, continuing without")
	} else {
		w := audit.NewWriter(f)
		defer w.Close()
		srv.Audit = w
	}
	log.Infof("serving on %s", *addr)
	if err := srv.ListenAndServe(*addr); err != nil {
		log.Fatal(err)
	}
}

func cmdSerial(args []string) {
	if len(args) < 1 {
		fail("usage: vlinker serial open|send-hex|at [args]")
	}
	fs := flag.NewFlagSet("serial", flag.ExitOnError)
	device := deviceFlag(fs)
	fs.Parse(args[1:])
	rest := fs.Args()

	switch args[0] {
	case "open":
		stream := openStream(*device)
		defer stream.Close()
		fmt.Printf("opened %s\n", stream.Device)

	case "send-hex":
		if len(rest) < 1 {
			fail("usage: vlinker serial send-hex [-device dev] <hex>")
		}
		stream := openStream(*device)
		defer stream.Close()
		resp, err := serial.SendHex(stream, rest[0])
		if err != nil {
			fail("send-hex: %v", err)
		}
		fmt.Println(strings.ToUpper(hex.EncodeToString(resp)))

	case "at":
		if len(rest) < 1 {
			fail("usage: vlinker serial at [-device dev] <command>")
		}
		stream := openStream(*device)
		defer stream.Close()
		resp, err := serial.SendASCIILine(stream, rest[0])
		if err != nil {
			fail("at: %v", err)
		}
		fmt.Println(strings.TrimSpace(string(resp)))

	default:
		fail("unknown serial subcommand %q", args[0])
	}
}

func cmdDiag(args []string) {
	if len(args) < 1 {
		fail("usage: vlinker diag scan|read-dtc|clear-dtc|measure|send-hex [args]")
	}
	fs := flag.NewFlagSet("diag", flag.ExitOnError)
	device := deviceFlag(fs)
	force := fs.Bool("force", false, "required for clear-dtc")
	fs.Parse(args[1:])
	rest := fs.Args()

	mgr := connmgr.New()
	if err := mgr.Connect(resolveDevice(*device), 0); err != nil {
		fail("connect: %v", err)
	}
	defer mgr.Disconnect()

	switch args[0] {
	case "scan":
		results, err := mgr.Scan()
		if err != nil {
			fail("scan: %v", err)
		}
		for _, r := range results {
			probe := r.Probe
			if probe == "" {
				probe = "(newline)"
			}
			fmt.Printf("%-10s hex=%s ascii=%q\n", probe, r.RespHex, strings.TrimSpace(r.RespASCII))
		}

	case "read-dtc":
		resp, err := mgr.ReadDTC()
		if err != nil {
			fail("read-dtc: %v", err)
		}
		records := protocol.ParseUDSReadDTC(resp)
		if len(records) == 0 {
			fmt.Println("no DTCs")
			return
		}
		for _, rec := range records {
			line := strings.ToUpper(hex.EncodeToString(rec.Raw))
			if rec.Status != nil {
				line += fmt.Sprintf(" status=0x%02X", *rec.Status)
			}
			fmt.Println(line)
		}

	case "clear-dtc":
		if !*force {
			fail("clear-dtc is destructive; pass -force")
		}
		resp, err := mgr.ClearDTC()
		if err != nil {
			fail("clear-dtc: %v", err)
		}
		fmt.Println(strings.ToUpper(hex.EncodeToString(resp)))

	case "measure":
		if len(rest) < 1 {
			fail("usage: vlinker diag measure [-device dev] <pid> [pid...]")
		}
		measures, err := mgr.ReadMeasures(rest)
		if err != nil {
			fail("measure: %v", err)
		}
		for _, m := range measures {
			if m.Err != nil {
				fmt.Printf("%s: error: %v\n", m.PID, m.Err)
				continue
			}
			if m.Value.ASCII != nil {
				fmt.Printf("%s: %s (%s)\n", m.PID, m.Value.RawHex, *m.Value.ASCII)
				continue
			}
			fmt.Printf("%s: %s\n", m.PID, m.Value.RawHex)
		}

	case "send-hex":
		if len(rest) < 1 {
			fail("usage: vlinker diag send-hex [-device dev] <hex>")
		}
		payload, err := hex.DecodeString(strings.ReplaceAll(rest[0], " ", ""))
		if err != nil {
			fail("invalid hex: %v", err)
		}
		resp, err := mgr.Transact(payload)
		if err != nil {
			fail("send-hex: %v", err)
		}
		fmt.Println(strings.ToUpper(hex.EncodeToString(resp)))

	default:
		fail("unknown diag subcommand %q", args[0])
	}
}

func cmdAdv(args []string) {
	if len(args) < 1 {
		fail("usage: vlinker adv req-seed|send-key|uds|coding|sec-access [args]")
	}
	fs := flag.NewFlagSet("adv", flag.ExitOnError)
	device := deviceFlag(fs)
	sub := fs.Uint("sub", 0x01, "SecurityAccess sub-function")
	did := fs.String("did", "", "data identifier, 4 hex chars")
	set := fs.String("set", "", "comma-separated byte:bit:value bit updates")
	dryRun := fs.Bool("dry-run", false, "build the payload without transmitting")
	profileName := fs.String("profile", "", "ECU profile name for sec-access")
	profiles := fs.String("profiles", "ecu_profiles.ini", "profile registry path")
	fs.Parse(args[1:])
	rest := fs.Args()

	switch args[0] {
	case "req-seed":
		client := newClient(openStream(*device))
		seed, err := client.SecurityAccessRequestSeed(byte(*sub))
		if err != nil {
			fail("req-seed: %v", err)
		}
		fmt.Println(strings.ToUpper(hex.EncodeToString(seed)))

	case "send-key":
		if len(rest) < 1 {
			fail("usage: vlinker adv send-key [-sub n] <key hex>")
		}
		key, err := hex.DecodeString(rest[0])
		if err != nil {
			fail("invalid key hex: %v", err)
		}
		client := newClient(openStream(*device))
		resp, err := client.SecurityAccessSendKey(byte(*sub), key)
		if err != nil {
			fail("send-key: %v", err)
		}
		fmt.Println(strings.ToUpper(hex.EncodeToString(resp)))

	case "uds":
		if len(rest) < 1 {
			fail("usage: vlinker adv uds [-device dev] <request hex>")
		}
		payload, err := hex.DecodeString(strings.ReplaceAll(rest[0], " ", ""))
		if err != nil {
			fail("invalid hex: %v", err)
		}
		stream := openStream(*device)
		defer stream.Close()
		engine := isotp.NewEngine(stream, isotp.DefaultOptions())
		resp, err := engine.Transact(payload, 0)
		if err != nil {
			fail("uds: %v", err)
		}
		fmt.Println(strings.ToUpper(hex.EncodeToString(resp)))

	case "coding":
		cmdAdvCoding(*device, *did, *set, *dryRun)

	case "sec-access":
		if *profileName == "" {
			fail("usage: vlinker adv sec-access -profile name [-profiles path]")
		}
		reg := profile.NewRegistry(*profiles)
		p, ok, err := reg.Get(*profileName)
		if err != nil {
			fail("sec-access: %v", err)
		}
		if !ok {
			fail("sec-access: unknown profile %q", *profileName)
		}
		var transform func([]byte) []byte
		if p.Transform != nil {
			tr := *p.Transform
			transform = tr.Apply
		}
		client := newClient(openStream(*device))
		result, err := client.SecurityAccessWithProfile(byte(*sub), byte(*sub)+1, transform)
		if err != nil {
			fail("sec-access: %v", err)
		}
		fmt.Printf("mode=%s seed=%s", result.Mode, strings.ToUpper(hex.EncodeToString(result.Seed)))
		if result.Mode == "auto" {
			fmt.Printf(" key=%s response=%s",
				strings.ToUpper(hex.EncodeToString(result.Key)),
				strings.ToUpper(hex.EncodeToString(result.Response)))
		}
		fmt.Println()

	default:
		fail("unknown adv subcommand %q", args[0])
	}
}

func cmdAdvCoding(device, didHex, set string, dryRun bool) {
	if len(didHex) != 4 {
		fail("coding: -did must be 4 hex chars")
	}
	didBytes, err := hex.DecodeString(didHex)
	if err != nil {
		fail("coding: invalid -did: %v", err)
	}
	did := uint16(didBytes[0])<<8 | uint16(didBytes[1])

	updates, err := parseBitUpdates(set)
	if err != nil {
		fail("coding: %v", err)
	}

	client := newClient(openStream(device))
	value, err := client.ReadDID(did)
	if err != nil {
		fail("coding: read: %v", err)
	}
	current, err := hex.DecodeString(value.RawHex)
	if err != nil {
		fail("coding: undecodable current value %q", value.RawHex)
	}
	fmt.Printf("current: %s\n", value.RawHex)

	next, err := coding.Update(current, updates)
	if err != nil {
		fail("coding: %v", err)
	}
	fmt.Printf("next:    %s\n", strings.ToUpper(hex.EncodeToString(next)))

	payload, resp, err := client.WriteDataByIdentifier(did, next, dryRun)
	if err != nil {
		fail("coding: write: %v", err)
	}
	if dryRun {
		fmt.Printf("dry-run payload: %s\n", payload)
		return
	}
	fmt.Printf("response: %s\n", strings.ToUpper(hex.EncodeToString(resp)))
}

func parseBitUpdates(set string) ([]coding.BitUpdate, error) {
	if set == "" {
		return nil, fmt.Errorf("-set is required, e.g. 0:3:1,1:7:0")
	}
	var updates []coding.BitUpdate
	for _, part := range strings.Split(set, ",") {
		fields := strings.Split(part, ":")
		if len(fields) != 3 {
			return nil, fmt.Errorf("bad bit update %q", part)
		}
		b, err1 := strconv.Atoi(fields[0])
		bit, err2 := strconv.Atoi(fields[1])
		v, err3 := strconv.Atoi(fields[2])
		if err1 != nil || err2 != nil || err3 != nil {
			return nil, fmt.Errorf("bad bit update %q", part)
		}
		updates = append(updates, coding.BitUpdate{Byte: b, Bit: bit, Value: v})
	}
	return updates, nil
}

// cmdCan bridges a serial adapter into a kernel CAN interface. The bridge
// itself is an OS utility; this just execs it with the right arguments.
func cmdCan(args []string) {
	if len(args) < 1 {
		fail("usage: vlinker can attach-slcan|attach-pycan [args]")
	}
	fs := flag.NewFlagSet("can", flag.ExitOnError)
	device := deviceFlag(fs)
	iface := fs.String("iface", "slcan0", "CAN interface name")
	fs.Parse(args[1:])

	switch args[0] {
	case "attach-slcan":
		dev := resolveDevice(*device)
		cmd := exec.Command("slcand", "-o", "-c", "-s6", dev, *iface)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Run(); err != nil {
			fail("slcand: %v", err)
		}
		fmt.Printf("attached %s as %s; bring it up with: ip link set %s up\n", dev, *iface, *iface)

	case "attach-pycan":
		fail("attach-pycan is not available in this build; use attach-slcan")

	default:
		fail("unknown can subcommand %q", args[0])
	}
}

func cmdCapture(args []string) {
	if len(args) < 1 {
		fail("usage: vlinker capture start|parse [args]")
	}
	fs := flag.NewFlagSet("capture", flag.ExitOnError)
	device := deviceFlag(fs)
	out := fs.String("out", "capture.log", "journal output path")
	fs.Parse(args[1:])
	rest := fs.Args()

	switch args[0] {
	case "start":
		stream := openStream(*device)
		defer stream.Close()

		f, err := os.Create(*out)
		if err != nil {
			fail("capture: %v", err)
		}
		defer f.Close()
		fmt.Fprintln(f, "# vlinker capture")

		rec := capture.NewRecorder(stream, f)
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		log.Infof("capturing to %s, ^C to stop", *out)
		if err := rec.Run(ctx); err != nil {
			fail("capture: %v", err)
		}
		if err := capture.Save(*out, rec.Records()); err != nil {
			log.WithError(err).Warn("failed to write snapshot")
		}

	case "parse":
		path := *out
		if len(rest) > 0 {
			path = rest[0]
		}
		records, err := capture.Load(path)
		if err != nil {
			fail("capture parse: %v", err)
		}
		for _, r := range records {
			fmt.Printf("%s\t%s\t%s\n", r.Timestamp.Format("2006-01-02T15:04:05"), r.Direction, r.HexData())
		}

	default:
		fail("unknown capture subcommand %q", args[0])
	}
}

func cmdProfile(args []string) {
	if len(args) < 1 {
		fail("usage: vlinker profile analyze|build|interactive [args]")
	}
	fs := flag.NewFlagSet("profile", flag.ExitOnError)
	path := fs.String("path", "capture.log", "capture journal to analyse")
	name := fs.String("name", "", "profile name to write")
	algo := fs.String("algo", "", "transform name, e.g. xor_0x5A")
	force := fs.Bool("force", false, "overwrite an existing profile")
	profiles := fs.String("profiles", "ecu_profiles.ini", "profile registry path")
	fs.Parse(args[1:])

	records, err := capture.Load(*path)
	if err != nil {
		fail("profile: %v", err)
	}
	candidates := profile.Analyse(records)
	if len(candidates) == 0 {
		fail("profile: no SecurityAccess seed found in %s", *path)
	}

	switch args[0] {
	case "analyze":
		for _, c := range candidates {
			fmt.Printf("seed %s:\n", strings.ToUpper(hex.EncodeToString(c.Seed)))
			for _, tr := range c.Transforms {
				fmt.Printf("  %-12s -> %s\n", tr.Name(), strings.ToUpper(hex.EncodeToString(tr.Apply(c.Seed))))
			}
		}

	case "build":
		if *name == "" || *algo == "" {
			fail("usage: vlinker profile build -path log -name n -algo a [-force]")
		}
		writeProfile(*profiles, *name, *algo, *force, candidates[0])

	case "interactive":
		candidate := candidates[0]
		fmt.Printf("seed %s; candidates:\n", strings.ToUpper(hex.EncodeToString(candidate.Seed)))
		for i, tr := range candidate.Transforms {
			fmt.Printf("  [%d] %-12s -> %s\n", i, tr.Name(), strings.ToUpper(hex.EncodeToString(tr.Apply(candidate.Seed))))
		}
		fmt.Print("pick a candidate index: ")
		scanner := bufio.NewScanner(os.Stdin)
		if !scanner.Scan() {
			fail("profile: no selection")
		}
		idx, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
		if err != nil || idx < 0 || idx >= len(candidate.Transforms) {
			fail("profile: invalid selection")
		}
		fmt.Print("profile name: ")
		if !scanner.Scan() || strings.TrimSpace(scanner.Text()) == "" {
			fail("profile: no name")
		}
		writeProfile(*profiles, strings.TrimSpace(scanner.Text()), candidate.Transforms[idx].Name(), *force, candidate)

	default:
		fail("unknown profile subcommand %q", args[0])
	}
}

func writeProfile(registryPath, name, algo string, force bool, candidate profile.SeedCandidate) {
	var chosen *profile.Transform
	for i, tr := range candidate.Transforms {
		if tr.Name() == algo {
			chosen = &candidate.Transforms[i]
			break
		}
	}
	if chosen == nil {
		fail("profile: unknown algo %q for this seed", algo)
	}

	reg := profile.NewRegistry(registryPath)
	if _, exists, err := reg.Get(name); err != nil {
		fail("profile: %v", err)
	} else if exists && !force {
		fail("profile: %q already exists; pass -force to overwrite", name)
	}
	if err := reg.Put(profile.Profile{Name: name, Transform: chosen}); err != nil {
		fail("profile: %v", err)
	}
	key := chosen.Apply(candidate.Seed)
	fmt.Printf("wrote %s: algo=%s seed=%s key=%s\n", name, chosen.Name(),
		strings.ToUpper(hex.EncodeToString(candidate.Seed)),
		strings.ToUpper(hex.EncodeToString(key)))
}
