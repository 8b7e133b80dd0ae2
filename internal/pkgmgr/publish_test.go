package pkgmgr

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestSigner(t *testing.T) *KeystoreSigner {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("ed25519.GenerateKey: %v", err)
	}
	return &KeystoreSigner{alias: "x07-publish", priv: priv, pub: pub}
}

func TestKeystoreSignerSignVerifyRoundTrip(t *testing.T) {
	s := newTestSigner(t)
	data := []byte("hello x07")
	sig, err := s.Sign(context.Background(), data)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if err := s.Verify(context.Background(), data, sig); err != nil {
		t.Errorf("Verify: %v", err)
	}
}

func TestKeystoreSignerVerifyRejectsTamperedData(t *testing.T) {
	s := newTestSigner(t)
	sig, err := s.Sign(context.Background(), []byte("original"))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if err := s.Verify(context.Background(), []byte("tampered"), sig); err == nil {
		t.Error("expected Verify to reject a signature over different data")
	}
}

func TestSignArchiveProducesEnvelopeCoveringSubjectDigest(t *testing.T) {
	s := newTestSigner(t)
	envelope, err := SignArchive(context.Background(), s, "x07:example", "1.0.0", "abc123", time.Unix(0, 0).UTC())
	if err != nil {
		t.Fatalf("SignArchive: %v", err)
	}
	if envelope.PayloadType == "" {
		t.Error("envelope PayloadType should carry the statement's in-toto type")
	}
	if len(envelope.Signatures) != 1 {
		t.Fatalf("got %d signatures, want 1", len(envelope.Signatures))
	}

	payload, err := decodeDSSEPayload(envelope)
	if err != nil {
		t.Fatalf("decodeDSSEPayload: %v", err)
	}
	var st statement
	if err := json.Unmarshal(payload, &st); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(st.Subject) != 1 || st.Subject[0].Digest["sha256"] != "abc123" {
		t.Errorf("statement subject = %+v, want digest sha256=abc123", st.Subject)
	}
	if st.Predicate.PkgID != "x07:example" || st.Predicate.Version != "1.0.0" {
		t.Errorf("statement predicate = %+v", st.Predicate)
	}
}

func TestPublishSendsJSONBodyWithMatchingDigest(t *testing.T) {
	archive := []byte("pretend archive bytes")
	sum := sha256.Sum256(archive)
	wantSHA256 := hex.EncodeToString(sum[:])

	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		var body publishBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decoding publish body: %v", err)
		}
		if body.SHA256 != wantSHA256 {
			t.Errorf("body.SHA256 = %q, want %q", body.SHA256, wantSHA256)
		}
		decoded, err := base64.StdEncoding.DecodeString(body.ArchiveBase64)
		if err != nil || string(decoded) != string(archive) {
			t.Errorf("body.ArchiveBase64 did not round-trip the archive")
		}
		if body.SizeBytes != len(archive) {
			t.Errorf("body.SizeBytes = %d, want %d", body.SizeBytes, len(archive))
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	reg := &Registry{Name: "crates", IndexURL: "sparse+https://index.example.com/", Client: http.DefaultClient}
	if err := Publish(context.Background(), reg, srv.URL, "x07:example", "1.0.0", "tar.zst", archive, nil); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if gotPath != "/packages/new" {
		t.Errorf("request path = %q, want %q", gotPath, "/packages/new")
	}
}

func TestPublishReturnsImmutabilityErrorOn409(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	reg := &Registry{Name: "crates", IndexURL: "sparse+https://index.example.com/", Client: http.DefaultClient}
	err := Publish(context.Background(), reg, srv.URL, "x07:example", "1.0.0", "tar.zst", []byte("data"), nil)
	if err == nil {
		t.Fatal("expected an error for a 409 Conflict response")
	}
}
