// Package objectstore implements content-addressed, digest-verified storage
// of DICOM instance files on a local filesystem tree.
package objectstore

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noctis-health/pacs-core/internal/errs"
)

// Store manages instance files rooted at a single directory. Every finalized
// path is derived deterministically from patient/study/series/instance UIDs,
// so callers never need to remember where a file landed.
type Store struct {
	root               string
	verifyDigestOnRead bool
	log                zerolog.Logger
}

// New returns a Store rooted at root, creating the root and staging
// directories if they do not already exist.
func New(root string, verifyDigestOnRead bool, log zerolog.Logger) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("objectstore: root must not be empty")
	}
	s := &Store{root: root, verifyDigestOnRead: verifyDigestOnRead, log: log.With().Str("component", "objectstore").Logger()}
	if err := os.MkdirAll(s.stagingDir(), 0o755); err != nil {
		return nil, fmt.Errorf("objectstore: create staging dir: %w", err)
	}
	return s, nil
}

func (s *Store) stagingDir() string {
	return filepath.Join(s.root, ".staging")
}

// patientIDHash returns the two-hex-character sha1 prefix used to bucket
// instances under the store root, keeping any single directory from growing
// unbounded as patient counts grow.
func patientIDHash(patientID string) string {
	sum := sha1.Sum([]byte(patientID))
	return hex.EncodeToString(sum[:1])
}

// CanonicalPath returns the final on-disk path for an instance, without
// creating or checking anything.
func (s *Store) CanonicalPath(patientID, studyUID, seriesUID, sopInstanceUID string) string {
	return filepath.Join(s.root, patientIDHash(patientID), studyUID, seriesUID, sopInstanceUID+".dcm")
}

// StagedFile is a handle to a temporary file under the staging directory,
// writable by the caller before being atomically finalized into place.
type StagedFile struct {
	Path   string
	file   *os.File
	digest *sha256Writer
}

func (sf *StagedFile) Write(p []byte) (int, error) {
	return sf.digest.Write(p)
}

// Close flushes and closes the underlying file without finalizing it.
func (sf *StagedFile) Close() error {
	return sf.file.Close()
}

// Digest returns the running sha256 digest of everything written so far.
func (sf *StagedFile) Digest() string {
	return sf.digest.Sum()
}

// StageNew creates a new staging file under `<root>/.staging/<uuid>` and
// returns a handle the caller writes the incoming association's dataset into.
func (s *Store) StageNew() (*StagedFile, error) {
	name := uuid.NewString()
	path := filepath.Join(s.stagingDir(), name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errs.Wrap(errs.KindProcessingFailure, "create staging file", err)
	}
	return &StagedFile{
		Path:   path,
		file:   f,
		digest: newSHA256Writer(f),
	}, nil
}

// FinalizeAt closes the staged file, verifies its digest matches expectedSHA256
// (when non-empty), and moves it into its canonical location with an atomic
// rename, creating any intermediate directories. If the rename fails, the
// file is copied straight into the destination and fsynced, and the staged
// copy is removed; that fallback is not atomic. Returns the final path.
func (s *Store) FinalizeAt(sf *StagedFile, patientID, studyUID, seriesUID, sopInstanceUID, expectedSHA256 string) (string, error) {
	if err := sf.file.Sync(); err != nil {
		return "", errs.Wrap(errs.KindProcessingFailure, "sync staged file", err)
	}
	if err := sf.file.Close(); err != nil {
		return "", errs.Wrap(errs.KindProcessingFailure, "close staged file", err)
	}

	actual := sf.Digest()
	if expectedSHA256 != "" && actual != expectedSHA256 {
		_ = os.Remove(sf.Path)
		return "", errs.New(errs.KindCorruptArtifact, "staged file digest mismatch").
			WithDetails(map[string]any{"expected": expectedSHA256, "actual": actual})
	}

	dest := s.CanonicalPath(patientID, studyUID, seriesUID, sopInstanceUID)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", errs.Wrap(errs.KindProcessingFailure, "create destination directory", err)
	}

	if err := os.Rename(sf.Path, dest); err != nil {
		if moveErr := copyAcrossDevices(sf.Path, dest); moveErr != nil {
			return "", errs.Wrap(errs.KindProcessingFailure, "finalize staged file", moveErr)
		}
		_ = os.Remove(sf.Path)
	}

	s.log.Debug().Str("path", dest).Msg("finalized instance file")
	return dest, nil
}

// Abandon removes a staged file that will never be finalized, e.g. because the
// association aborted mid-transfer.
func (s *Store) Abandon(sf *StagedFile) {
	_ = sf.file.Close()
	_ = os.Remove(sf.Path)
}

// Open returns a reader for the instance at the given canonical path,
// optionally verifying its sha256 digest before returning any bytes to the
// caller (store.verifyDigestOnRead). A caller only ever passes a path that
// came from an Instance row already found in the Metadata Index, so a
// missing file here means the file vanished out-of-band, not that the UID
// is unknown — reported as KindCorruptArtifact, not KindNotFound.
func (s *Store) Open(path, expectedSHA256 string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.Wrap(errs.KindCorruptArtifact, "indexed instance file is missing", err)
		}
		return nil, errs.Wrap(errs.KindProcessingFailure, "open instance file", err)
	}

	if !s.verifyDigestOnRead || expectedSHA256 == "" {
		return f, nil
	}

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		f.Close()
		return nil, errs.Wrap(errs.KindProcessingFailure, "digest instance file", err)
	}
	actual := hex.EncodeToString(h.Sum(nil))
	if actual != expectedSHA256 {
		f.Close()
		return nil, errs.New(errs.KindCorruptArtifact, "instance file digest mismatch on read").
			WithDetails(map[string]any{"expected": expectedSHA256, "actual": actual, "path": path})
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, errs.Wrap(errs.KindProcessingFailure, "rewind instance file", err)
	}
	return f, nil
}

// Remove deletes the instance file at path. It is idempotent: removing an
// already-absent file is not an error.
func (s *Store) Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errs.Wrap(errs.KindProcessingFailure, "remove instance file", err)
	}
	return nil
}

func copyAcrossDevices(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

type sha256Writer struct {
	w io.Writer
	h interface {
		io.Writer
		Sum([]byte) []byte
	}
}

func newSHA256Writer(w io.Writer) *sha256Writer {
	return &sha256Writer{w: w, h: sha256.New()}
}

func (s *sha256Writer) Write(p []byte) (int, error) {
	n, err := s.w.Write(p)
	if n > 0 {
		s.h.Write(p[:n])
	}
	return n, err
}

func (s *sha256Writer) Sum() string {
	return hex.EncodeToString(s.h.Sum(nil))
}
