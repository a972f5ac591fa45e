package dicomnet

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/rs/zerolog"
)

// PresentationContext is one negotiated abstract-syntax/transfer-syntax
// pairing from an association.
type PresentationContext struct {
	ID             byte
	Result         byte
	AbstractSyntax string
	TransferSyntax string
}

// Association represents one accepted DICOM Upper Layer connection: a
// negotiated set of presentation contexts plus the raw PDU stream. One
// Association is owned by exactly one goroutine for its entire lifetime.
type Association struct {
	conn             net.Conn
	log              zerolog.Logger
	calledAETitle    string
	callingAETitle   string
	maxPDULength     uint32
	presentationCtxs map[byte]*PresentationContext
}

// CallingAETitle returns the AE title the peer presented in A-ASSOCIATE-RQ.
func (a *Association) CallingAETitle() string { return a.callingAETitle }

// CalledAETitle returns the AE title this association was addressed to.
func (a *Association) CalledAETitle() string { return a.calledAETitle }

// RemoteAddr returns the peer's network address.
func (a *Association) RemoteAddr() string { return a.conn.RemoteAddr().String() }

// pdu is a raw, fully-read Protocol Data Unit.
type pdu struct {
	Type byte
	Data []byte
}

func readPDU(r io.Reader) (*pdu, error) {
	header := make([]byte, 6)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(header[2:6])
	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("dicomnet: read PDU data: %w", err)
	}
	return &pdu{Type: header[0], Data: data}, nil
}

// negotiate parses an A-ASSOCIATE-RQ PDU that the server's connection
// handler has already read off the wire, negotiates presentation contexts
// against supportedAbstract, and writes A-ASSOCIATE-AC. Returns an error for
// malformed input or a failed AC write; a
// request proposing zero acceptable contexts still gets an AC with every
// context rejected, per DICOM PS3.8 9.3.3 (rejecting the whole association
// for that reason is a policy decision made by the caller, not this layer).
func negotiate(conn net.Conn, rq *pdu, calledAETitle string, supportedAbstract func(string) bool, log zerolog.Logger) (*Association, error) {
	if rq.Type != PDUTypeAssociateRQ {
		return nil, fmt.Errorf("dicomnet: expected A-ASSOCIATE-RQ, got PDU type 0x%02x", rq.Type)
	}
	if len(rq.Data) < 68 {
		return nil, fmt.Errorf("dicomnet: A-ASSOCIATE-RQ too short")
	}

	data := rq.Data
	calledAE := trimAETitle(data[4:20])
	callingAE := trimAETitle(data[20:36])

	a := &Association{
		conn:             conn,
		log:              log,
		calledAETitle:    calledAE,
		callingAETitle:   callingAE,
		maxPDULength:     16384,
		presentationCtxs: make(map[byte]*PresentationContext),
	}

	offset := 68
	for offset+4 <= len(data) {
		itemType := data[offset]
		itemLength := binary.BigEndian.Uint16(data[offset+2 : offset+4])
		valueStart := offset + 4
		valueEnd := valueStart + int(itemLength)
		if valueEnd > len(data) {
			return nil, fmt.Errorf("dicomnet: association item exceeds PDU length")
		}
		item := data[valueStart:valueEnd]

		switch itemType {
		case 0x20: // Presentation Context Item
			ctx := parsePresentationContext(item, supportedAbstract)
			a.presentationCtxs[ctx.ID] = ctx
		case 0x50: // User Information Item
			if maxPDU := parseUserInformation(item); maxPDU > 0 {
				a.maxPDULength = maxPDU
			}
		}
		offset = valueEnd
	}

	ac := buildAssociateAccept(calledAETitle, callingAE, a.presentationCtxs)
	if _, err := conn.Write(ac); err != nil {
		return nil, fmt.Errorf("dicomnet: write A-ASSOCIATE-AC: %w", err)
	}
	a.calledAETitle = calledAETitle

	return a, nil
}

func trimAETitle(raw []byte) string {
	s := string(raw)
	if idx := strings.IndexByte(s, 0); idx != -1 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

func normalizeUID(raw []byte) string {
	return strings.TrimRight(string(raw), "\x00 ")
}

func parsePresentationContext(data []byte, supportedAbstract func(string) bool) *PresentationContext {
	ctxID := byte(0)
	var abstractSyntax string
	var transferSyntaxes []string

	if len(data) >= 1 {
		ctxID = data[0]
	}

	offset := 4
	for offset+4 <= len(data) {
		itemType := data[offset]
		itemLength := binary.BigEndian.Uint16(data[offset+2 : offset+4])
		valueStart := offset + 4
		valueEnd := valueStart + int(itemLength)
		if valueEnd > len(data) {
			break
		}
		value := data[valueStart:valueEnd]
		switch itemType {
		case 0x30:
			abstractSyntax = normalizeUID(value)
		case 0x40:
			transferSyntaxes = append(transferSyntaxes, normalizeUID(value))
		}
		offset = valueEnd
	}

	result := PresentationRejectAbstractSyntax
	selected := ""
	supported := map[string]bool{}
	for _, ts := range DefaultTransferSyntaxes() {
		supported[ts] = true
	}

	if abstractSyntax != "" && supportedAbstract(abstractSyntax) {
		for _, ts := range transferSyntaxes {
			if supported[ts] {
				selected = ts
				result = PresentationAcceptance
				break
			}
		}
		if selected == "" {
			result = PresentationRejectTransferSyntax
		}
	}

	return &PresentationContext{ID: ctxID, Result: result, AbstractSyntax: abstractSyntax, TransferSyntax: selected}
}

func parseUserInformation(data []byte) uint32 {
	offset := 0
	var maxPDULength uint32
	for offset+4 <= len(data) {
		itemType := data[offset]
		itemLength := binary.BigEndian.Uint16(data[offset+2 : offset+4])
		valueStart := offset + 4
		valueEnd := valueStart + int(itemLength)
		if valueEnd > len(data) {
			break
		}
		if itemType == 0x51 && itemLength == 4 {
			maxPDULength = binary.BigEndian.Uint32(data[valueStart:valueEnd])
		}
		offset = valueEnd
	}
	return maxPDULength
}

func buildAssociateAccept(calledAE, callingAE string, ctxs map[byte]*PresentationContext) []byte {
	fixed := make([]byte, 68)
	binary.BigEndian.PutUint16(fixed[0:2], 0x0001)
	copy(fixed[4:20], fmt.Sprintf("%-16s", truncate(calledAE, 16)))
	copy(fixed[20:36], fmt.Sprintf("%-16s", truncate(callingAE, 16)))

	appContextItem := tlvItem(0x10, []byte(ApplicationContextUID))

	var ids []byte
	for id := range ctxs {
		ids = append(ids, id)
	}
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			if ids[i] > ids[j] {
				ids[i], ids[j] = ids[j], ids[i]
			}
		}
	}

	var presItems []byte
	for _, id := range ids {
		ctx := ctxs[id]
		// DCMTK/Orthanc-compatible: omit rejected contexts' sub-items rather
		// than including an empty Transfer Syntax item.
		var sub []byte
		if ctx.Result == PresentationAcceptance {
			sub = tlvItem(0x40, []byte(ctx.TransferSyntax))
		}
		body := append([]byte{ctx.ID, ctx.Result, 0x00, 0x00}, sub...)
		item := make([]byte, 0, 4+len(body))
		item = append(item, 0x21, 0x00)
		itemLen := make([]byte, 2)
		binary.BigEndian.PutUint16(itemLen, uint16(len(body)))
		item = append(item, itemLen...)
		item = append(item, body...)
		presItems = append(presItems, item...)
	}

	maxPDUItem := []byte{0x51, 0x00, 0x00, 0x04}
	maxPDUValue := make([]byte, 4)
	binary.BigEndian.PutUint32(maxPDUValue, 16384)
	maxPDUItem = append(maxPDUItem, maxPDUValue...)

	implClassItem := tlvItem(0x52, []byte(ImplementationClassUID))
	implVersionItem := tlvItem(0x55, []byte(ImplementationVersion))

	userInfoBody := append(maxPDUItem, implClassItem...)
	userInfoBody = append(userInfoBody, implVersionItem...)
	userInfoItem := make([]byte, 0, 4+len(userInfoBody))
	userInfoItem = append(userInfoItem, 0x50, 0x00)
	userInfoLen := make([]byte, 2)
	binary.BigEndian.PutUint16(userInfoLen, uint16(len(userInfoBody)))
	userInfoItem = append(userInfoItem, userInfoLen...)
	userInfoItem = append(userInfoItem, userInfoBody...)

	variable := append(appContextItem, presItems...)
	variable = append(variable, userInfoItem...)
	body := append(fixed, variable...)

	header := make([]byte, 6)
	header[0] = PDUTypeAssociateAC
	binary.BigEndian.PutUint32(header[2:6], uint32(len(body)))

	return append(header, body...)
}

func tlvItem(itemType byte, value []byte) []byte {
	item := make([]byte, 0, 4+len(value))
	item = append(item, itemType, 0x00)
	length := make([]byte, 2)
	binary.BigEndian.PutUint16(length, uint16(len(value)))
	item = append(item, length...)
	return append(item, value...)
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// AcceptedPresentationContext returns the negotiated context for an ID, or
// ok=false if that ID was rejected or never proposed.
func (a *Association) AcceptedPresentationContext(id byte) (*PresentationContext, bool) {
	ctx, ok := a.presentationCtxs[id]
	if !ok || ctx.Result != PresentationAcceptance {
		return nil, false
	}
	return ctx, true
}

// HasAcceptedContext reports whether at least one presentation context was
// accepted, the DICOM PS3.8 condition for proceeding with the association
// rather than aborting it.
func (a *Association) HasAcceptedContext() bool {
	for _, ctx := range a.presentationCtxs {
		if ctx.Result == PresentationAcceptance {
			return true
		}
	}
	return false
}

// dimseMessage is one fully-reassembled DIMSE command plus its optional
// dataset, read across one or more P-DATA-TF PDUs.
type dimseMessage struct {
	PresContextID byte
	Command       *Command
	Dataset       []byte
}

// readDIMSEMessage reads PDUs until a complete command (and its dataset, if
// any) have been reassembled, or a release/abort/EOF ends the association.
func (a *Association) readDIMSEMessage() (*dimseMessage, error) {
	var commandData, datasetData []byte
	var cmd *Command
	var presContextID byte
	commandComplete := false
	datasetExpected := false
	datasetComplete := true

	for {
		p, err := readPDU(a.conn)
		if err != nil {
			return nil, err
		}

		switch p.Type {
		case PDUTypePDataTF:
			offset := 0
			for offset < len(p.Data) {
				if offset+6 > len(p.Data) {
					return nil, fmt.Errorf("dicomnet: malformed PDV")
				}
				pdvLength := binary.BigEndian.Uint32(p.Data[offset : offset+4])
				end := offset + 4 + int(pdvLength)
				if end > len(p.Data) {
					return nil, fmt.Errorf("dicomnet: PDV length exceeds PDU payload")
				}
				presContextID = p.Data[offset+4]
				control := p.Data[offset+5]
				value := p.Data[offset+6 : end]
				isCommand := control&0x01 != 0
				isLast := control&0x02 != 0

				if isCommand {
					commandData = append(commandData, value...)
					if isLast {
						commandComplete = true
						decoded, derr := DecodeCommand(commandData)
						if derr != nil {
							return nil, derr
						}
						cmd = decoded
						if cmd.CommandDataSetType != NoDataSetPresent {
							datasetExpected = true
							datasetComplete = len(datasetData) > 0 && datasetComplete
							if len(datasetData) == 0 {
								datasetComplete = false
							}
						}
					}
				} else {
					datasetData = append(datasetData, value...)
					if isLast {
						datasetComplete = true
					}
				}
				offset = end
			}
		case PDUTypeReleaseRQ:
			resp := []byte{PDUTypeReleaseRP, 0x00, 0x00, 0x00, 0x00, 0x04, 0x00, 0x00, 0x00, 0x00}
			_, _ = a.conn.Write(resp)
			return nil, io.EOF
		case PDUTypeReleaseRP:
			return nil, io.EOF
		case PDUTypeAbort:
			var source, reason byte
			if len(p.Data) >= 4 {
				source = p.Data[2]
				reason = p.Data[3]
			}
			return nil, fmt.Errorf("dicomnet: received A-ABORT (source=%d reason=%d)", source, reason)
		default:
			return nil, fmt.Errorf("dicomnet: unexpected PDU type 0x%02x during DIMSE exchange", p.Type)
		}

		if commandComplete && (!datasetExpected || datasetComplete) {
			return &dimseMessage{PresContextID: presContextID, Command: cmd, Dataset: datasetData}, nil
		}
	}
}

// sendCommand writes a DIMSE response (command, and optional dataset) as one
// or two P-DATA-TF PDUs.
func (a *Association) sendCommand(presContextID byte, cmd *Command, dataset []byte) error {
	commandData := EncodeCommand(cmd)
	if err := sendPDataTF(a.conn, presContextID, a.maxPDULength, commandData, true); err != nil {
		return err
	}
	if len(dataset) > 0 {
		return sendPDataTF(a.conn, presContextID, a.maxPDULength, dataset, false)
	}
	return nil
}

// Abort writes an A-ABORT PDU and closes the connection.
func (a *Association) Abort(source, reason byte) {
	body := []byte{0x00, 0x00, source, reason}
	header := make([]byte, 6)
	header[0] = PDUTypeAbort
	binary.BigEndian.PutUint32(header[2:6], uint32(len(body)))
	_, _ = a.conn.Write(append(header, body...))
	_ = a.conn.Close()
}

// Reject writes an A-ASSOCIATE-RJ PDU and closes the connection. Used when
// the calling AE title is not on the allow-list, or the association cap is
// exceeded.
func Reject(conn net.Conn, result, source, reason byte) {
	body := []byte{0x00, result, source, reason}
	header := make([]byte, 6)
	header[0] = PDUTypeAssociateRJ
	binary.BigEndian.PutUint32(header[2:6], uint32(len(body)))
	_, _ = conn.Write(append(header, body...))
	_ = conn.Close()
}
