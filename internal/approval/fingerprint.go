package approval

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"

	"git.home.luguber.info/inful/checkcode/internal/toolchain"
)

// Fingerprint hashes every resolved toolchain of the table: label,
// executable, arguments, preamble and input mode. Any change to what would be
// executed changes the fingerprint.
func Fingerprint(table *toolchain.Table) string {
	h := sha256.New()
	all := table.All()
	writeInt(h, len(all))
	for _, r := range all {
		writeString(h, r.Label())
		writeString(h, r.Executable)
		writeInt(h, len(r.Args))
		for _, a := range r.Args {
			writeString(h, a)
		}
		writeString(h, r.Preamble)
		writeString(h, string(r.Input))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Fields are length-prefixed so that no two distinct tables share an encoding.
func writeString(h hash.Hash, s string) {
	writeInt(h, len(s))
	_, _ = h.Write([]byte(s))
}

func writeInt(h hash.Hash, n int) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(n))
	_, _ = h.Write(buf[:])
}

// Short abbreviates a fingerprint for display.
func Short(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
