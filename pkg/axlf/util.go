package axlf

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// trimFixed converts a fixed-size char array to a string, stopping at the
// first NUL byte.
func trimFixed(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}

// setFixed copies s into dst, truncating if necessary and always leaving
// room for a NUL terminator when possible.
func setFixed(dst []byte, s string) {
	for i := range dst {
		dst[i] = 0
	}
	n := len(s)
	if n >= len(dst) {
		n = len(dst) - 1
		if n < 0 {
			n = 0
		}
	}
	copy(dst, s[:n])
}

// bytesToAlign returns the zero padding needed to bring offset to the next
// Alignment boundary.
func bytesToAlign(offset uint64) uint64 {
	rem := offset % Alignment
	if rem == 0 {
		return 0
	}
	return Alignment - rem
}

func writeFull(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}

// parseUint64String accepts decimal and "0x"-prefixed hex strings. When
// forceHex is set, a bare string is interpreted as hex.
func parseUint64String(s string, forceHex bool) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty numeric string")
	}
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s = s[2:]
		base = 16
	} else if forceHex {
		base = 16
	}
	v, err := strconv.ParseUint(s, base, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid numeric string %q: %w", s, err)
	}
	return v, nil
}

// hexStringToFixed decodes a hex string (dashes tolerated, as in UUID text
// forms) into dst. The decoded length must exactly fill dst.
func hexStringToFixed(dst []byte, s string) error {
	s = strings.ReplaceAll(s, "-", "")
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	raw, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("invalid hex string %q: %w", s, err)
	}
	if len(raw) != len(dst) {
		return fmt.Errorf("hex string %q decodes to %d bytes, expected %d", s, len(raw), len(dst))
	}
	copy(dst, raw)
	return nil
}

func fixedToHex(b []byte) string {
	return hex.EncodeToString(b)
}
