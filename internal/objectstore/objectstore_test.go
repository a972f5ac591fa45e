package objectstore

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/noctis-health/pacs-core/internal/errs"
)

func newTestStore(t *testing.T, verify bool) *Store {
	t.Helper()
	root := t.TempDir()
	s, err := New(root, verify, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func digestOf(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func TestStageAndFinalizeRoundTrip(t *testing.T) {
	s := newTestStore(t, true)
	data := []byte("fake dicom bytes")
	want := digestOf(data)

	sf, err := s.StageNew()
	if err != nil {
		t.Fatalf("StageNew: %v", err)
	}
	if _, err := sf.Write(data); err != nil {
		t.Fatalf("Write: %v", err)
	}

	path, err := s.FinalizeAt(sf, "PAT1", "1.2.study", "1.2.series", "1.2.instance", want)
	if err != nil {
		t.Fatalf("FinalizeAt: %v", err)
	}

	wantPath := s.CanonicalPath("PAT1", "1.2.study", "1.2.series", "1.2.instance")
	if path != wantPath {
		t.Fatalf("path = %q, want %q", path, wantPath)
	}

	rc, err := s.Open(path, want)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()
	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != string(data) {
		t.Fatalf("read back %q, want %q", got, data)
	}
}

func TestFinalizeRejectsDigestMismatch(t *testing.T) {
	s := newTestStore(t, true)
	sf, err := s.StageNew()
	if err != nil {
		t.Fatalf("StageNew: %v", err)
	}
	if _, err := sf.Write([]byte("some bytes")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	_, err = s.FinalizeAt(sf, "PAT1", "1.2.study", "1.2.series", "1.2.instance", "0000deadbeef")
	if err == nil {
		t.Fatal("expected digest mismatch error, got nil")
	}

	if _, statErr := os.Stat(sf.Path); !os.IsNotExist(statErr) {
		t.Fatalf("expected staged file to be removed after mismatch, stat err = %v", statErr)
	}
}

func TestOpenDetectsCorruptionOnRead(t *testing.T) {
	s := newTestStore(t, true)
	data := []byte("original contents")
	want := digestOf(data)

	sf, err := s.StageNew()
	if err != nil {
		t.Fatalf("StageNew: %v", err)
	}
	sf.Write(data)
	path, err := s.FinalizeAt(sf, "PAT1", "1.2.study", "1.2.series", "1.2.instance", want)
	if err != nil {
		t.Fatalf("FinalizeAt: %v", err)
	}

	if err := os.WriteFile(path, []byte("tampered contents!"), 0o644); err != nil {
		t.Fatalf("tamper write: %v", err)
	}

	_, err = s.Open(path, want)
	if err == nil {
		t.Fatal("expected corruption error, got nil")
	}
}

func TestOpenReportsCorruptArtifactWhenFileIsMissing(t *testing.T) {
	s := newTestStore(t, false)
	path := s.CanonicalPath("PAT1", "1.2.study", "1.2.series", "1.2.instance")

	_, err := s.Open(path, "")
	if err == nil {
		t.Fatal("expected error when the indexed file is missing")
	}
	if errs.KindOf(err) != errs.KindCorruptArtifact {
		t.Fatalf("kind = %v, want KindCorruptArtifact", errs.KindOf(err))
	}
}

func TestCanonicalPathIsDeterministic(t *testing.T) {
	s := newTestStore(t, false)
	p1 := s.CanonicalPath("PAT1", "1.2.study", "1.2.series", "1.2.instance")
	p2 := s.CanonicalPath("PAT1", "1.2.study", "1.2.series", "1.2.instance")
	if p1 != p2 {
		t.Fatalf("CanonicalPath not deterministic: %q vs %q", p1, p2)
	}
	if filepath.Base(p1) != "1.2.instance.dcm" {
		t.Fatalf("unexpected filename: %q", filepath.Base(p1))
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	s := newTestStore(t, false)
	path := s.CanonicalPath("PAT1", "1.2.study", "1.2.series", "1.2.instance")
	if err := s.Remove(path); err != nil {
		t.Fatalf("Remove on absent file should be a no-op, got %v", err)
	}
}
