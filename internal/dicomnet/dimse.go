package dicomnet

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"
)

// Command is a decoded DIMSE command set. Only the fields C-STORE and
// C-ECHO actually use are present; the Implicit VR wire format carries many
// more optional elements this codebase never needs to round-trip.
type Command struct {
	CommandField              uint16
	MessageID                 uint16
	MessageIDBeingRespondedTo uint16
	Priority                  uint16
	CommandDataSetType        uint16
	Status                    uint16
	AffectedSOPClassUID       string
	AffectedSOPInstanceUID    string
}

// EncodeCommand serializes a Command using Implicit VR Little Endian
// tag/length/value triplets, as DICOM PS3.8 requires of every DIMSE command
// set regardless of the negotiated dataset transfer syntax.
func EncodeCommand(msg *Command) []byte {
	buf := make([]byte, 0, 128)

	// Command Group Length (0000,0000) placeholder, patched below.
	buf = appendImplicitElement(buf, 0x0000, 0x0000, make([]byte, 4))
	lengthPos := len(buf) - 4

	if msg.AffectedSOPClassUID != "" {
		buf = appendImplicitElement(buf, 0x0000, 0x0002, padEvenNUL([]byte(msg.AffectedSOPClassUID)))
	}

	cmdBytes := make([]byte, 2)
	binary.LittleEndian.PutUint16(cmdBytes, msg.CommandField)
	buf = appendImplicitElement(buf, 0x0000, 0x0100, cmdBytes)

	if msg.MessageID != 0 {
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, msg.MessageID)
		buf = appendImplicitElement(buf, 0x0000, 0x0110, b)
	}

	if msg.MessageIDBeingRespondedTo != 0 {
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, msg.MessageIDBeingRespondedTo)
		buf = appendImplicitElement(buf, 0x0000, 0x0120, b)
	}

	if msg.Priority != 0 {
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, msg.Priority)
		buf = appendImplicitElement(buf, 0x0000, 0x0700, b)
	}

	dsType := make([]byte, 2)
	binary.LittleEndian.PutUint16(dsType, msg.CommandDataSetType)
	buf = appendImplicitElement(buf, 0x0000, 0x0800, dsType)

	if msg.CommandField == CommandCStoreRSP || msg.CommandField == CommandCEchoRSP {
		st := make([]byte, 2)
		binary.LittleEndian.PutUint16(st, msg.Status)
		buf = appendImplicitElement(buf, 0x0000, 0x0900, st)
	}

	if msg.AffectedSOPInstanceUID != "" {
		buf = appendImplicitElement(buf, 0x0000, 0x1000, padEvenNUL([]byte(msg.AffectedSOPInstanceUID)))
	}

	groupLength := uint32(len(buf) - lengthPos - 4)
	binary.LittleEndian.PutUint32(buf[lengthPos:lengthPos+4], groupLength)

	return buf
}

func padEvenNUL(b []byte) []byte {
	if len(b)%2 == 1 {
		return append(b, 0x00)
	}
	return b
}

func appendImplicitElement(buf []byte, group, element uint16, value []byte) []byte {
	buf = append(buf, byte(group), byte(group>>8))
	buf = append(buf, byte(element), byte(element>>8))
	length := uint32(len(value))
	buf = append(buf, byte(length), byte(length>>8), byte(length>>16), byte(length>>24))
	return append(buf, value...)
}

// DecodeCommand parses an Implicit VR Little Endian command set.
func DecodeCommand(data []byte) (*Command, error) {
	msg := &Command{CommandDataSetType: NoDataSetPresent}
	offset := 0

	for offset+8 <= len(data) {
		group := binary.LittleEndian.Uint16(data[offset : offset+2])
		element := binary.LittleEndian.Uint16(data[offset+2 : offset+4])
		length := binary.LittleEndian.Uint32(data[offset+4 : offset+8])

		if offset+8+int(length) > len(data) {
			return nil, fmt.Errorf("dicomnet: command element (%04x,%04x) length exceeds buffer", group, element)
		}
		value := data[offset+8 : offset+8+int(length)]

		if group == 0x0000 {
			switch element {
			case 0x0002:
				msg.AffectedSOPClassUID = strings.TrimRight(string(value), "\x00 ")
			case 0x0100:
				if len(value) >= 2 {
					msg.CommandField = binary.LittleEndian.Uint16(value[:2])
				}
			case 0x0110:
				if len(value) >= 2 {
					msg.MessageID = binary.LittleEndian.Uint16(value[:2])
				}
			case 0x0120:
				if len(value) >= 2 {
					msg.MessageIDBeingRespondedTo = binary.LittleEndian.Uint16(value[:2])
				}
			case 0x0700:
				if len(value) >= 2 {
					msg.Priority = binary.LittleEndian.Uint16(value[:2])
				}
			case 0x0800:
				if len(value) >= 2 {
					msg.CommandDataSetType = binary.LittleEndian.Uint16(value[:2])
				}
			case 0x0900:
				if len(value) >= 2 {
					msg.Status = binary.LittleEndian.Uint16(value[:2])
				}
			case 0x1000:
				msg.AffectedSOPInstanceUID = strings.TrimRight(string(value), "\x00 ")
			}
		}

		offset += 8 + int(length)
	}

	return msg, nil
}

// sendPDataTF fragments data into PDVs no larger than maxPDULength allows
// and writes each as its own P-DATA-TF PDU. isCommand/isLast set the
// Message Control Header bits DICOM PS3.8 Section 9.3.1 defines.
func sendPDataTF(w io.Writer, presContextID byte, maxPDULength uint32, data []byte, isCommand bool) error {
	maxPDVData := int(maxPDULength) - 6 - 6
	if maxPDVData < 1 {
		maxPDVData = 1
	}

	offset := 0
	if len(data) == 0 {
		offset = -1 // force one empty-fragment iteration below
	}

	for offset < len(data) {
		start := offset
		if start < 0 {
			start = 0
		}
		chunkSize := len(data) - start
		last := true
		if chunkSize > maxPDVData {
			chunkSize = maxPDVData
			last = false
		}

		pdv := make([]byte, 0, chunkSize+6)
		pdvLength := make([]byte, 4)
		binary.BigEndian.PutUint32(pdvLength, uint32(chunkSize+2))
		pdv = append(pdv, pdvLength...)
		pdv = append(pdv, presContextID)

		control := byte(0)
		if isCommand {
			control |= 0x01
		}
		if last {
			control |= 0x02
		}
		pdv = append(pdv, control)
		pdv = append(pdv, data[start:start+chunkSize]...)

		pduHeader := make([]byte, 6)
		pduHeader[0] = PDUTypePDataTF
		binary.BigEndian.PutUint32(pduHeader[2:6], uint32(len(pdv)))

		if _, err := w.Write(append(pduHeader, pdv...)); err != nil {
			return fmt.Errorf("dicomnet: write P-DATA-TF: %w", err)
		}

		if offset < 0 {
			break
		}
		offset += chunkSize
	}

	return nil
}
