package dicomscp

import (
	"bytes"
	"testing"
)

func TestBuildPart10FileHasPreambleAndMarker(t *testing.T) {
	out := buildPart10File("1.2.840.10008.1.2.1", "1.2.840.10008.5.1.4.1.1.2", "1.2.3.4.5", []byte{0x01, 0x02})

	if len(out) < 132 {
		t.Fatalf("output too short: %d bytes", len(out))
	}
	if !bytes.Equal(out[128:132], []byte("DICM")) {
		t.Fatalf("missing DICM marker at offset 128: %v", out[128:132])
	}
	for _, b := range out[:128] {
		if b != 0 {
			t.Fatal("preamble must be all-zero")
		}
	}
}

func TestBuildPart10FileAppendsDatasetVerbatim(t *testing.T) {
	dataset := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	out := buildPart10File("1.2.840.10008.1.2", "1.2.840.10008.5.1.4.1.1.7", "1.2.3", dataset)

	if !bytes.Contains(out, dataset) {
		t.Fatal("dataset bytes not found in synthesized file")
	}
	if !bytes.HasSuffix(out, dataset) {
		t.Fatal("dataset must be the final bytes written, following the File Meta group")
	}
}

func TestEncodeFileMetaGroupLengthIsAccurate(t *testing.T) {
	meta := encodeFileMetaGroup("1.2.840.10008.1.2.1", "1.2.840.10008.5.1.4.1.1.2", "1.2.3.4.5")

	// First element is the group length element itself: tag(4) + VR(2) + len(2) + value(4).
	if len(meta) < 12 {
		t.Fatalf("meta group too short: %d bytes", len(meta))
	}
	declaredLen := int(meta[8]) | int(meta[9])<<8 | int(meta[10])<<16 | int(meta[11])<<24
	actualRemaining := len(meta) - 12
	if declaredLen != actualRemaining {
		t.Fatalf("File Meta group length = %d, want %d", declaredLen, actualRemaining)
	}
}
