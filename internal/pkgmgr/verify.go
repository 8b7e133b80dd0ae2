package pkgmgr

import (
	"context"
	"crypto"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/secure-systems-lab/go-securesystemslib/dsse"

	"j5.dev/x07/internal/diag"
	"j5.dev/x07/internal/hashext"
)

// VerifyArchive re-derives archiveData's sha256 and checks it against
// wantSHA256 (the lockfile's ARTIFACT_HASH_MISMATCH check), then — if
// envelope is non-nil — checks the DSSE signature over the
// in-toto statement and that the statement's subject digest names the
// same sha256, before a caller extracts the archive. This is the
// `x07 pkg verify` supplement: a plain lockfile hash check alone can't
// tell you WHO produced an archive, only that it matches a recorded
// digest; the provenance check additionally proves that record's
// signer.
func VerifyArchive(ctx context.Context, archiveData []byte, wantSHA256 string, envelope *dsse.Envelope, pub ed25519.PublicKey) error {
	got := sha256HexOf(archiveData)
	if got != wantSHA256 {
		return &Error{Code: diag.ArtifactHashMismatch, Err: errors.Errorf("archive sha256 %s does not match recorded %s", got, wantSHA256)}
	}
	if envelope == nil {
		return nil
	}
	verifier := ed25519Verifier{pub: pub}
	ev, err := dsse.NewEnvelopeVerifier(&verifier)
	if err != nil {
		return errors.Wrap(err, "pkgmgr: constructing envelope verifier")
	}
	acceptedKeys, err := ev.Verify(ctx, envelope)
	if err != nil {
		return errors.Wrap(err, "pkgmgr: provenance signature verification failed")
	}
	if len(acceptedKeys) == 0 {
		return errors.New("pkgmgr: provenance envelope has no valid signatures")
	}
	var st statement
	payload, err := decodeDSSEPayload(envelope)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(payload, &st); err != nil {
		return errors.Wrap(err, "pkgmgr: parsing provenance statement")
	}
	for _, subj := range st.Subject {
		if subj.Digest["sha256"] == wantSHA256 {
			return nil
		}
	}
	return errors.Errorf("pkgmgr: provenance statement does not cover sha256 %s", wantSHA256)
}

func decodeDSSEPayload(envelope *dsse.Envelope) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(envelope.Payload)
	if err != nil {
		return nil, errors.Wrap(err, "pkgmgr: decoding envelope payload")
	}
	return data, nil
}

// ed25519Verifier adapts a bare ed25519.PublicKey to dsse.SignVerifier's
// read side; Publish's KeystoreSigner provides the write side.
type ed25519Verifier struct {
	pub ed25519.PublicKey
}

func (v *ed25519Verifier) Public() crypto.PublicKey { return v.pub }

func (v *ed25519Verifier) Sign(ctx context.Context, data []byte) ([]byte, error) {
	return nil, errors.New("pkgmgr: ed25519Verifier cannot sign")
}

func (v *ed25519Verifier) Verify(ctx context.Context, data, sig []byte) error {
	if !ed25519.Verify(v.pub, data, sig) {
		return errors.New("pkgmgr: dsse signature verification failed")
	}
	return nil
}

func (v *ed25519Verifier) KeyID() (string, error) { return "", nil }

func sha256HexOf(data []byte) string {
	h := hashext.NewTypedHash(crypto.SHA256)
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}
