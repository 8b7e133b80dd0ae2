package ccbuild

import (
	"encoding/hex"
	"os"

	"golang.org/x/crypto/blake2b"

	"j5.dev/x07/internal/canon"
)

// SourceBlake2b256 hashes src with blake2b-256, the fast secondary digest
// DeterminismManifest carries alongside sha256.
func SourceBlake2b256(src []byte) string {
	sum := blake2b.Sum256(src)
	return hex.EncodeToString(sum[:])
}

// DeterminismManifest is the record every build must produce: the
// compiler invocation and the resulting binary's digest, so
// a later rebuild can be compared byte-for-byte against it.
//
// SourceBlake2b256 rides alongside SourceSHA256 rather than replacing it:
// sha256 is the one digest every wire format (lockfile artifacts,
// module_index, the archive's own sha256) ever compares against, so it
// stays the content-address of record; blake2b256 is a second, faster
// digest over the same bytes a build tool can use to short-circuit a
// rebuild-cache lookup without paying sha256's cost on every invocation,
// the same role golang.org/x/crypto/blake2b plays for a hashed-nonce
// derivation elsewhere in the pack (Aureuma-si/tools/si's GitHub-secret
// sealing command).
type DeterminismManifest struct {
	CC               string
	Profile          Profile
	Flags            []string
	SourceSHA256     string
	SourceBlake2b256 string
	BinarySHA256     string
}

// Canonicalize renders the manifest through internal/canon, the same
// canonical-JSON writer every other x07 wire artifact uses.
func (m DeterminismManifest) Canonicalize() []byte {
	v := canon.Obj(
		canon.KV("binary_sha256", canon.Str(m.BinarySHA256)),
		canon.KV("cc", canon.Str(m.CC)),
		canon.KV("flags", canon.ArrFrom(m.Flags, canon.Str)),
		canon.KV("profile", canon.Str(string(m.Profile))),
		canon.KV("source_blake2b256", canon.Str(m.SourceBlake2b256)),
		canon.KV("source_sha256", canon.Str(m.SourceSHA256)),
	)
	return canon.Encode(v)
}

// NewDeterminismManifest builds a manifest from a completed Build call.
func NewDeterminismManifest(opt Options, sourceSHA256 string, result Result) DeterminismManifest {
	cc := opt.CC
	if cc == "" {
		cc = "cc"
	}
	blake := ""
	if src, err := os.ReadFile(opt.SourcePath); err == nil {
		blake = SourceBlake2b256(src)
	}
	return DeterminismManifest{
		CC:               cc,
		Profile:          opt.Profile,
		Flags:            flagsFor(opt.Profile),
		SourceSHA256:     sourceSHA256,
		SourceBlake2b256: blake,
		BinarySHA256:     result.SHA256,
	}
}
