package dicomnet

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeCommandRoundTrip(t *testing.T) {
	cmd := &Command{
		CommandField:           CommandCStoreRQ,
		MessageID:               7,
		Priority:                 2,
		CommandDataSetType:       0x0000,
		AffectedSOPClassUID:      "1.2.840.10008.5.1.4.1.1.2",
		AffectedSOPInstanceUID:   "1.2.3.4.5",
	}

	encoded := EncodeCommand(cmd)
	decoded, err := DecodeCommand(encoded)
	if err != nil {
		t.Fatalf("DecodeCommand: %v", err)
	}

	if decoded.CommandField != cmd.CommandField {
		t.Errorf("CommandField = 0x%04x, want 0x%04x", decoded.CommandField, cmd.CommandField)
	}
	if decoded.MessageID != cmd.MessageID {
		t.Errorf("MessageID = %d, want %d", decoded.MessageID, cmd.MessageID)
	}
	if decoded.AffectedSOPClassUID != cmd.AffectedSOPClassUID {
		t.Errorf("AffectedSOPClassUID = %q, want %q", decoded.AffectedSOPClassUID, cmd.AffectedSOPClassUID)
	}
	if decoded.AffectedSOPInstanceUID != cmd.AffectedSOPInstanceUID {
		t.Errorf("AffectedSOPInstanceUID = %q, want %q", decoded.AffectedSOPInstanceUID, cmd.AffectedSOPInstanceUID)
	}
}

func TestEncodeCommandComputesGroupLength(t *testing.T) {
	cmd := &Command{CommandField: CommandCEchoRQ, MessageID: 1, CommandDataSetType: NoDataSetPresent, AffectedSOPClassUID: VerificationSOPClass}
	encoded := EncodeCommand(cmd)

	if len(encoded) < 12 {
		t.Fatalf("encoded command too short: %d bytes", len(encoded))
	}
	// Group Length element: tag (4 bytes) + length (4 bytes) + 4-byte value.
	groupLengthValue := encoded[8:12]
	remaining := len(encoded) - 12
	got := int(groupLengthValue[0]) | int(groupLengthValue[1])<<8 | int(groupLengthValue[2])<<16 | int(groupLengthValue[3])<<24
	if got != remaining {
		t.Fatalf("Command Group Length = %d, want %d (bytes following it)", got, remaining)
	}
}

func TestSendPDataTFFragmentsAcrossMaxPDULength(t *testing.T) {
	var buf bytes.Buffer
	data := bytes.Repeat([]byte{0xAB}, 100)

	if err := sendPDataTF(&buf, 1, 30, data, true); err != nil {
		t.Fatalf("sendPDataTF: %v", err)
	}

	// maxPDVData = 30 - 6 - 6 = 18, so 100 bytes needs 6 fragments (5*18 + 10).
	// Each P-DATA-TF PDU has a 6-byte header.
	var pduCount int
	r := bytes.NewReader(buf.Bytes())
	for r.Len() > 0 {
		header := make([]byte, 6)
		if _, err := r.Read(header); err != nil {
			t.Fatalf("read header: %v", err)
		}
		length := int(header[2])<<24 | int(header[3])<<16 | int(header[4])<<8 | int(header[5])
		payload := make([]byte, length)
		if _, err := r.Read(payload); err != nil {
			t.Fatalf("read payload: %v", err)
		}
		pduCount++
	}

	if pduCount != 6 {
		t.Fatalf("fragmented into %d PDUs, want 6", pduCount)
	}
}
