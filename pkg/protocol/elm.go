package protocol

import "encoding/hex"

// StripELMEcho normalises an ELM-327 style ASCII-hex response into raw
// bytes: decode as ASCII ignoring anything that isn't ASCII, drop the
// prompt/line-ending characters, keep only hex digits, drop a trailing odd
// digit, then hex-decode. If the result still fails to decode, resp is
// returned unchanged.
func StripELMEcho(resp []byte) []byte {
	filtered := make([]byte, 0, len(resp))
	for _, b := range resp {
		switch b {
		case '>', '\r', '\n':
			continue
		}
		if isHexDigit(b) {
			filtered = append(filtered, b)
		}
	}
	if len(filtered)%2 != 0 {
		filtered = filtered[:len(filtered)-1]
	}
	decoded, err := hex.DecodeString(string(filtered))
	if err != nil {
		return resp
	}
	return decoded
}

func isHexDigit(b byte) bool {
	return (b >= '0' && b <= '9') || (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F')
}

func isAllPrintableASCII(b []byte) bool {
	for _, c := range b {
		if c == '\r' || c == '\n' {
			continue
		}
		if c < 0x20 || c > 0x7E {
			return false
		}
	}
	return true
}
