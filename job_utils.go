package stratumcore

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
)

var (
	hexNibbleLUT   [256]byte
	hexPairByteLUT [65536]uint16
)

func init() {
	for i := range hexNibbleLUT {
		hexNibbleLUT[i] = 0xff
	}
	for c := byte('0'); c <= '9'; c++ {
		hexNibbleLUT[c] = c - '0'
	}
	for c := byte('a'); c <= 'f'; c++ {
		hexNibbleLUT[c] = c - 'a' + 10
	}
	for c := byte('A'); c <= 'F'; c++ {
		hexNibbleLUT[c] = c - 'A' + 10
	}

	// 2-byte LUT: maps (hi<<8)|lo => decoded byte, or 0x100 for invalid.
	for i := range hexPairByteLUT {
		hexPairByteLUT[i] = 0x100
	}
	for hi := 0; hi < 256; hi++ {
		h := hexNibbleLUT[hi]
		if h == 0xff {
			continue
		}
		for lo := 0; lo < 256; lo++ {
			l := hexNibbleLUT[lo]
			if l == 0xff {
				continue
			}
			hexPairByteLUT[(hi<<8)|lo] = uint16((h << 4) | l)
		}
	}
}

func decodeHexToFixedBytes(dst []byte, src string) error {
	if len(src) != len(dst)*2 {
		return fmt.Errorf("expected %d hex characters, got %d", len(dst)*2, len(src))
	}
	for i := range dst {
		v := hexPairByteLUT[int(src[i*2])<<8|int(src[i*2+1])]
		if v > 0xff {
			return fmt.Errorf("invalid hex digit in %q", src)
		}
		dst[i] = byte(v)
	}
	return nil
}

// isHex reports whether s is an even-length string of hex digits.
func isHex(s string) bool {
	if len(s)%2 != 0 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if hexNibbleLUT[s[i]] == 0xff {
			return false
		}
	}
	return true
}

func parseUint32BEHex(hexStr string) (uint32, error) {
	if len(hexStr) != 8 {
		return 0, fmt.Errorf("expected 8 hex characters, got %d", len(hexStr))
	}
	var buf [4]byte
	if err := decodeHexToFixedBytes(buf[:], hexStr); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

func uint32ToBEHex(v uint32) string {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	return hex.EncodeToString(buf[:])
}

func versionMutable(mutable []string) bool {
	for _, m := range mutable {
		if strings.HasPrefix(m, "version/") {
			return true
		}
	}
	return false
}
