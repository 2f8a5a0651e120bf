package extract

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

const (
	flagIgnore    = "ignore"
	flagPropagate = "propagate"
	keyVariant    = "variant"
)

// Header is a parsed fence info string.
type Header struct {
	Token     string
	Variant   string
	Ignore    bool
	Propagate bool
	Extra     []string
}

// ParseHeader parses an info string of the form token[,flag|key=value]*.
// It reports false for headers that must be skipped.
func ParseHeader(info string) (Header, bool) {
	info = strings.TrimSpace(info)
	if info == "" {
		return Header{}, false
	}

	parts := strings.Split(info, ",")
	token := Normalize(strings.TrimSpace(parts[0]))
	if !validToken(token) {
		return Header{}, false
	}

	h := Header{Token: token}
	seenVariant := false
	for _, raw := range parts[1:] {
		part := Normalize(strings.TrimSpace(raw))
		if part == "" {
			return Header{}, false
		}

		key, value, isPair := strings.Cut(part, "=")
		if !isPair {
			switch part {
			case flagIgnore:
				h.Ignore = true
			case flagPropagate:
				h.Propagate = true
			default:
				h.Extra = append(h.Extra, part)
			}
			continue
		}

		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			return Header{}, false
		}
		if key != keyVariant {
			h.Extra = append(h.Extra, key+"="+value)
			continue
		}
		if seenVariant {
			return Header{}, false
		}
		seenVariant = true
		h.Variant = value
	}
	return h, true
}

// Normalize returns s in Unicode normalization form C, so that visually
// identical tokens compare equal.
func Normalize(s string) string {
	return norm.NFC.String(s)
}

func validToken(token string) bool {
	if token == "" {
		return false
	}
	for _, r := range token {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case strings.ContainsRune("_+#.-", r):
		default:
			return false
		}
	}
	return true
}
