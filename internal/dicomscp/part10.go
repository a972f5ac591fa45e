package dicomscp

import (
	"bytes"
	"encoding/binary"
)

// buildPart10File synthesizes a valid DICOM Part 10 file (128-byte preamble,
// "DICM" marker, File Meta Information group) around the bare dataset bytes
// an association delivers. The wire protocol never carries a Part 10 header
// — C-STORE transmits only the dataset, in the negotiated transfer syntax —
// but storing a self-describing file lets every downstream reader (the
// Image Delivery Service, any future export tooling) open it with a normal
// DICOM Part 10 parser instead of needing to know the original association's
// negotiated transfer syntax out of band.
func buildPart10File(transferSyntaxUID, sopClassUID, sopInstanceUID string, dataset []byte) []byte {
	var buf bytes.Buffer

	buf.Write(make([]byte, 128))
	buf.WriteString("DICM")

	meta := encodeFileMetaGroup(transferSyntaxUID, sopClassUID, sopInstanceUID)
	buf.Write(meta)
	buf.Write(dataset)

	return buf.Bytes()
}

func encodeFileMetaGroup(transferSyntaxUID, sopClassUID, sopInstanceUID string) []byte {
	var body bytes.Buffer

	writeExplicitUI(&body, 0x0002, 0x0001, []byte{0x00, 0x01}) // FileMetaInformationVersion
	writeExplicitUI(&body, 0x0002, 0x0002, padEven(sopClassUID))
	writeExplicitUI(&body, 0x0002, 0x0003, padEven(sopInstanceUID))
	writeExplicitUI(&body, 0x0002, 0x0010, padEven(transferSyntaxUID))
	writeExplicitUI(&body, 0x0002, 0x0012, padEven("1.2.826.0.1.3680043.9.7433.1.1"))
	writeExplicitUI(&body, 0x0002, 0x0013, padEven("NOCTIS_PACS_1.0"))

	var out bytes.Buffer
	groupLength := make([]byte, 4)
	binary.LittleEndian.PutUint32(groupLength, uint32(body.Len()))
	writeExplicitUL(&out, 0x0002, 0x0000, groupLength)
	out.Write(body.Bytes())

	return out.Bytes()
}

func padEven(s string) []byte {
	b := []byte(s)
	if len(b)%2 == 1 {
		b = append(b, 0x00)
	}
	return b
}

// writeExplicitUI writes one element in Explicit VR Little Endian with a
// 2-byte length, the form every File Meta Information element uses
// regardless of the dataset's own transfer syntax (PS3.10 Section 7.1).
func writeExplicitUI(buf *bytes.Buffer, group, element uint16, value []byte) {
	writeExplicitShortVR(buf, group, element, "UI", value)
}

func writeExplicitUL(buf *bytes.Buffer, group, element uint16, value []byte) {
	writeExplicitShortVR(buf, group, element, "UL", value)
}

func writeExplicitShortVR(buf *bytes.Buffer, group, element uint16, vr string, value []byte) {
	binary.Write(buf, binary.LittleEndian, group)
	binary.Write(buf, binary.LittleEndian, element)
	buf.WriteString(vr)
	length := make([]byte, 2)
	binary.LittleEndian.PutUint16(length, uint16(len(value)))
	buf.Write(length)
	buf.Write(value)
}
