package httpapi

// Simulator mode lets the diagnostic endpoints be exercised without a live
// device: two fixed fake ECUs, two fixed fake DTCs, and measures that are
// either a fixed fixture or an echo of the requested PIDs.

var simulatedECUs = []ecuInfo{
	{Name: "ECU_ENGINE", Addr: "7E0"},
	{Name: "ECU_ABS", Addr: "7E1"},
}

var simulatedDTCs = []string{"010203", "AABBCC"}

func simulatedMeasures(pids []string) map[string]any {
	if len(pids) == 0 {
		return map[string]any{"rpm": 800, "temp": 72}
	}
	out := make(map[string]any, len(pids))
	for _, pid := range pids {
		out[pid] = pid
	}
	return out
}
