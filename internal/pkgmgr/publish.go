package pkgmgr

import (
	"bytes"
	"context"
	"crypto"
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/in-toto/in-toto-golang/in_toto"
	"github.com/in-toto/in-toto-golang/in_toto/slsa_provenance/common"
	"github.com/pavlo-v-chernykh/keystore-go/v4"
	"github.com/pkg/errors"
	"github.com/secure-systems-lab/go-securesystemslib/dsse"
)

// predicateType identifies the x07 publish predicate below. The
// StatementHeader's Type field uses in_toto.StatementInTotoV1 rather
// than a predicate-specific constant, since a package publish attests
// only "this archive was produced and submitted by the holder of this
// key", not a full build provenance chain the way SLSA1's predicate
// does.
const predicateType = "https://x07.dev/attestation/publish/v1"

// publishPredicate is the provenance predicate signed over a published
// package archive: who published it, and when, alongside the archive's
// own sha256 (already carried as the statement's Subject digest).
type publishPredicate struct {
	PkgID       string    `json:"pkg_id"`
	Version     string    `json:"version"`
	PublishedAt time.Time `json:"published_at"`
}

// statement is a generic in-toto statement: in_toto.StatementHeader plus
// a predicate of any shape, since in-toto-golang's exported statement
// types are all SLSA-provenance-specific and x07's predicate isn't one.
type statement struct {
	in_toto.StatementHeader
	Predicate publishPredicate `json:"predicate"`
}

// KeystoreSigner implements dsse.SignVerifier over an ed25519 key loaded
// from a local Java KeyStore (.jks) file, the same keystore-go/v4 format
// a proxy CA might use for trusted certificates — here holding
// a private key entry instead.
type KeystoreSigner struct {
	alias string
	priv  ed25519.PrivateKey
	pub   ed25519.PublicKey
}

// LoadKeystoreSigner reads a .jks file and returns the ed25519 signer
// stored under alias, decrypting the private key entry with password.
func LoadKeystoreSigner(r io.Reader, password []byte, alias string) (*KeystoreSigner, error) {
	ks := keystore.New()
	if err := ks.Load(r, password); err != nil {
		return nil, errors.Wrap(err, "pkgmgr: loading keystore")
	}
	entry, err := ks.GetPrivateKeyEntry(alias, password)
	if err != nil {
		return nil, errors.Wrapf(err, "pkgmgr: reading private key entry %q", alias)
	}
	key, err := x509.ParsePKCS8PrivateKey(entry.PrivateKey)
	if err != nil {
		return nil, errors.Wrap(err, "pkgmgr: parsing PKCS8 private key")
	}
	priv, ok := key.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.Errorf("pkgmgr: key entry %q is not ed25519", alias)
	}
	return &KeystoreSigner{alias: alias, priv: priv, pub: priv.Public().(ed25519.PublicKey)}, nil
}

func (s *KeystoreSigner) Public() crypto.PublicKey { return s.pub }

func (s *KeystoreSigner) Sign(ctx context.Context, data []byte) ([]byte, error) {
	return ed25519.Sign(s.priv, data), nil
}

func (s *KeystoreSigner) Verify(ctx context.Context, data, sig []byte) error {
	if !ed25519.Verify(s.pub, data, sig) {
		return errors.New("pkgmgr: dsse signature verification failed")
	}
	return nil
}

func (s *KeystoreSigner) KeyID() (string, error) { return s.alias, nil }

// SignArchive builds and DSSE-signs the in-toto publish statement over
// archiveSHA256 (hex-encoded), the way an InTotoEnvelopeSigner's
// SignStatement method would, but against x07's own
// publishPredicate rather than in_toto.ProvenanceStatementSLSA1.
func SignArchive(ctx context.Context, signer *KeystoreSigner, pkgID, version, archiveSHA256 string, publishedAt time.Time) (*dsse.Envelope, error) {
	es, err := dsse.NewEnvelopeSigner(signer)
	if err != nil {
		return nil, errors.Wrap(err, "pkgmgr: constructing envelope signer")
	}
	st := statement{
		StatementHeader: in_toto.StatementHeader{
			Type:          in_toto.StatementInTotoV1,
			PredicateType: predicateType,
			Subject: []in_toto.Subject{
				{Name: pkgID + "@" + version, Digest: common.DigestSet{"sha256": archiveSHA256}},
			},
		},
		Predicate: publishPredicate{PkgID: pkgID, Version: version, PublishedAt: publishedAt},
	}
	body, err := json.Marshal(st)
	if err != nil {
		return nil, errors.Wrap(err, "pkgmgr: marshalling provenance statement")
	}
	envelope, err := es.SignPayload(ctx, st.Type, body)
	if err != nil {
		return nil, errors.Wrap(err, "pkgmgr: signing provenance envelope")
	}
	return envelope, nil
}

// publishBody is the JSON body of PUT {api}/packages/new:
// `{pkg_id, version, format, sha256, size_bytes, archive_base64}`, plus an
// x07-specific `provenance` extension carrying the DSSE-signed in-toto
// envelope SignArchive produces.
type publishBody struct {
	PkgID         string        `json:"pkg_id"`
	Version       string        `json:"version"`
	Format        string        `json:"format"`
	SHA256        string        `json:"sha256"`
	SizeBytes     int           `json:"size_bytes"`
	ArchiveBase64 string        `json:"archive_base64"`
	Provenance    *dsse.Envelope `json:"provenance,omitempty"`
}

// Publish submits a package archive to a registry's publish endpoint.
// A 409 response means the (pkg_id, version) pair was already published;
// publishing is immutable, so this is always a final error, never
// retried. The server is required to reject a publish whose
// declared sha256 doesn't match the archive bytes, so Publish computes
// and sends that digest itself rather than trusting a caller-supplied
// value.
func Publish(ctx context.Context, reg *Registry, apiBase, pkgID, version, format string, archive []byte, provenance *dsse.Envelope) error {
	sum := sha256.Sum256(archive)
	body := publishBody{
		PkgID:         pkgID,
		Version:       version,
		Format:        format,
		SHA256:        hex.EncodeToString(sum[:]),
		SizeBytes:     len(archive),
		ArchiveBase64: base64.StdEncoding.EncodeToString(archive),
		Provenance:    provenance,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "pkgmgr: marshalling publish request")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPut, apiBase+"/packages/new", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	// X-Request-Id is a correlation id for the registry's own request logs
	// only; it never enters body, provenance, or lockfile, so it cannot
	// affect the S5 determinism property.
	httpReq.Header.Set("X-Request-Id", uuid.New().String())
	resp, err := reg.do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		return nil
	case http.StatusConflict:
		return errors.Errorf("pkgmgr: %s@%s already published (immutable)", pkgID, version)
	default:
		return errors.Errorf("pkgmgr: publishing %s@%s: %s", pkgID, version, resp.Status)
	}
}
