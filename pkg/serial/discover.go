package serial

import (
	"os"
	"path/filepath"
	"sort"
)

// EnvDevice overrides device auto-discovery when set.
const EnvDevice = "VLINKER_DEVICE"

// preferredDevice is probed first; after that any /dev/ttyUSB* node is a
// candidate.
const preferredDevice = "/dev/ttyUSB0"

// DiscoverDevice returns the serial device node to use: the VLINKER_DEVICE
// environment variable when set, otherwise /dev/ttyUSB0 if it exists,
// otherwise the first /dev/ttyUSB* node found. An empty string means no
// device was found.
func DiscoverDevice() string {
	if dev := os.Getenv(EnvDevice); dev != "" {
		return dev
	}
	if _, err := os.Stat(preferredDevice); err == nil {
		return preferredDevice
	}
	matches, err := filepath.Glob("/dev/ttyUSB*")
	if err != nil || len(matches) == 0 {
		return ""
	}
	sort.Strings(matches)
	return matches[0]
}

// ListDevices returns every /dev/ttyUSB* candidate, plus the VLINKER_DEVICE
// override first when set.
func ListDevices() []string {
	var out []string
	if dev := os.Getenv(EnvDevice); dev != "" {
		out = append(out, dev)
	}
	matches, _ := filepath.Glob("/dev/ttyUSB*")
	sort.Strings(matches)
	for _, m := range matches {
		if len(out) > 0 && out[0] == m {
			continue
		}
		out = append(out, m)
	}
	return out
}
