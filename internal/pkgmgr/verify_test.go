package pkgmgr

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"
)

func TestVerifyArchiveRejectsHashMismatch(t *testing.T) {
	data := []byte("package contents")
	err := VerifyArchive(context.Background(), data, "not-the-real-hash", nil, nil)
	if err == nil {
		t.Fatal("expected an error for a sha256 mismatch")
	}
}

func TestVerifyArchiveAcceptsMatchingHashWithoutProvenance(t *testing.T) {
	data := []byte("package contents")
	sum := sha256.Sum256(data)
	want := hex.EncodeToString(sum[:])
	if err := VerifyArchive(context.Background(), data, want, nil, nil); err != nil {
		t.Errorf("VerifyArchive: %v", err)
	}
}

func TestVerifyArchiveAcceptsSignedProvenance(t *testing.T) {
	data := []byte("package contents")
	sum := sha256.Sum256(data)
	want := hex.EncodeToString(sum[:])

	signer := newTestSigner(t)
	envelope, err := SignArchive(context.Background(), signer, "x07:example", "1.0.0", want, time.Unix(0, 0).UTC())
	if err != nil {
		t.Fatalf("SignArchive: %v", err)
	}

	if err := VerifyArchive(context.Background(), data, want, envelope, signer.pub); err != nil {
		t.Errorf("VerifyArchive with valid provenance: %v", err)
	}
}

func TestVerifyArchiveRejectsProvenanceSignedByADifferentKey(t *testing.T) {
	data := []byte("package contents")
	sum := sha256.Sum256(data)
	want := hex.EncodeToString(sum[:])

	signer := newTestSigner(t)
	envelope, err := SignArchive(context.Background(), signer, "x07:example", "1.0.0", want, time.Unix(0, 0).UTC())
	if err != nil {
		t.Fatalf("SignArchive: %v", err)
	}

	otherSigner := newTestSigner(t)
	if err := VerifyArchive(context.Background(), data, want, envelope, otherSigner.pub); err == nil {
		t.Fatal("expected an error: envelope was signed by a different key")
	}
}

func TestVerifyArchiveRejectsProvenanceForADifferentDigest(t *testing.T) {
	data := []byte("package contents")
	sum := sha256.Sum256(data)
	want := hex.EncodeToString(sum[:])

	signer := newTestSigner(t)
	envelope, err := SignArchive(context.Background(), signer, "x07:example", "1.0.0", "deadbeef", time.Unix(0, 0).UTC())
	if err != nil {
		t.Fatalf("SignArchive: %v", err)
	}

	if err := VerifyArchive(context.Background(), data, want, envelope, signer.pub); err == nil {
		t.Fatal("expected an error: provenance statement covers a different digest")
	}
}
