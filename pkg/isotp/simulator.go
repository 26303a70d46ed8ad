package isotp

import "fmt"

// BuildFrames segments payload into the SF, or FF+CF*, sequence a sender
// would put on the wire for the given MTU. This is a pure function pair
// with Reassemble, with no Flow Control or timing involved, used by tests
// and the /api/sim/frames endpoint. The final CF is zero-padded to MTU.
func BuildFrames(payload []byte, mtu int) ([][]byte, error) {
	if mtu < 3 {
		return nil, fmt.Errorf("isotp: mtu must be >= 3, got %d", mtu)
	}
	n := len(payload)
	if n == 0 {
		return nil, fmt.Errorf("isotp: payload must not be empty")
	}
	if n <= mtu-1 {
		frame := make([]byte, mtu)
		frame[0] = pciSF<<4 | byte(n)
		copy(frame[1:], payload)
		return [][]byte{frame}, nil
	}
	if n > MaxPayload {
		return nil, fmt.Errorf("isotp: payload too long: %d > %d", n, MaxPayload)
	}

	ff := make([]byte, mtu)
	ff[0] = pciFF<<4 | byte(n>>8)
	ff[1] = byte(n & 0xFF)
	firstChunk := mtu - 2
	copy(ff[2:], payload[:firstChunk])

	frames := [][]byte{ff}
	remaining := payload[firstChunk:]
	seq := byte(1)
	for len(remaining) > 0 {
		cf := make([]byte, mtu)
		cf[0] = pciCF<<4 | (seq & 0x0F)
		chunkLen := mtu - 1
		if chunkLen > len(remaining) {
			chunkLen = len(remaining)
		}
		copy(cf[1:], remaining[:chunkLen])
		frames = append(frames, cf)
		remaining = remaining[chunkLen:]
		seq = (seq + 1) % 16
	}
	return frames, nil
}

// Reassemble inverts BuildFrames: the first frame's PCI must be SF or FF,
// every subsequent frame must be a CF, and the result is truncated to the
// length declared by SF/FF (trailing pad bytes in the last CF are dropped).
func Reassemble(frames [][]byte) ([]byte, error) {
	if len(frames) == 0 {
		return nil, fmt.Errorf("isotp: no frames to reassemble")
	}
	first := frames[0]
	if len(first) == 0 {
		return nil, fmt.Errorf("isotp: empty first frame")
	}
	switch first[0] >> 4 {
	case pciSF:
		length := int(first[0] & 0x0F)
		if len(first)-1 < length {
			return nil, fmt.Errorf("isotp: SF declares %d bytes but frame is short", length)
		}
		if len(frames) != 1 {
			return nil, fmt.Errorf("isotp: SF must be the only frame")
		}
		return append([]byte(nil), first[1:1+length]...), nil
	case pciFF:
		if len(first) < 2 {
			return nil, fmt.Errorf("isotp: truncated FF")
		}
		length := (int(first[0]&0x0F) << 8) | int(first[1])
		buf := make([]byte, 0, length)
		buf = append(buf, first[2:]...)
		for i, f := range frames[1:] {
			if len(f) == 0 || f[0]>>4 != pciCF {
				return nil, fmt.Errorf("isotp: frame %d must be a CF", i+1)
			}
			buf = append(buf, f[1:]...)
		}
		if len(buf) < length {
			return nil, fmt.Errorf("isotp: reassembled %d bytes, declared %d", len(buf), length)
		}
		return buf[:length], nil
	default:
		return nil, fmt.Errorf("isotp: first frame must be SF or FF")
	}
}
