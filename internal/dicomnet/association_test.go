package dicomnet

import (
	"encoding/binary"
	"net"
	"testing"

	"github.com/rs/zerolog"
)

func buildAssociateRQ(calledAE, callingAE string, contexts []struct {
	id             byte
	abstractSyntax string
	transferSyntax string
}) []byte {
	fixed := make([]byte, 68)
	binary.BigEndian.PutUint16(fixed[0:2], 0x0001)
	copy(fixed[4:20], padTo16(calledAE))
	copy(fixed[20:36], padTo16(callingAE))

	appCtx := tlvItem(0x10, []byte(ApplicationContextUID))

	var presItems []byte
	for _, c := range contexts {
		abstractItem := tlvItem(0x30, []byte(c.abstractSyntax))
		transferItem := tlvItem(0x40, []byte(c.transferSyntax))
		sub := append(abstractItem, transferItem...)
		body := append([]byte{c.id, 0x00, 0x00, 0x00}, sub...)
		item := make([]byte, 0, 4+len(body))
		item = append(item, 0x20, 0x00)
		l := make([]byte, 2)
		binary.BigEndian.PutUint16(l, uint16(len(body)))
		item = append(item, l...)
		item = append(item, body...)
		presItems = append(presItems, item...)
	}

	maxPDUValue := make([]byte, 4)
	binary.BigEndian.PutUint32(maxPDUValue, 16384)
	userInfoBody := append([]byte{0x51, 0x00, 0x00, 0x04}, maxPDUValue...)
	userInfoItem := tlvItem(0x50, userInfoBody)

	variable := append(appCtx, presItems...)
	variable = append(variable, userInfoItem...)
	body := append(fixed, variable...)

	header := make([]byte, 6)
	header[0] = PDUTypeAssociateRQ
	binary.BigEndian.PutUint32(header[2:6], uint32(len(body)))
	return append(header, body...)
}

func padTo16(s string) []byte {
	b := make([]byte, 16)
	copy(b, s)
	for i := len(s); i < 16; i++ {
		b[i] = ' '
	}
	return b
}

func TestNegotiateAcceptsStoreSOPClass(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	rqBytes := buildAssociateRQ("STORE_SCP", "MODALITY1", []struct {
		id             byte
		abstractSyntax string
		transferSyntax string
	}{
		{1, "1.2.840.10008.5.1.4.1.1.2", ImplicitVRLittleEndian},
	})

	go func() {
		client.Write(rqBytes)
	}()

	rq, err := readPDU(server)
	if err != nil {
		t.Fatalf("readPDU: %v", err)
	}

	acDone := make(chan []byte, 1)
	go func() {
		header := make([]byte, 6)
		client.Read(header)
		length := binary.BigEndian.Uint32(header[2:6])
		body := make([]byte, length)
		client.Read(body)
		acDone <- append(header, body...)
	}()

	assoc, err := negotiate(server, rq, "STORE_SCP", IsSupportedAbstractSyntax, zerolog.Nop())
	if err != nil {
		t.Fatalf("negotiate: %v", err)
	}

	ac := <-acDone
	if ac[0] != PDUTypeAssociateAC {
		t.Fatalf("response PDU type = 0x%02x, want A-ASSOCIATE-AC", ac[0])
	}

	if !assoc.HasAcceptedContext() {
		t.Fatal("expected at least one accepted presentation context")
	}
	ctx, ok := assoc.AcceptedPresentationContext(1)
	if !ok {
		t.Fatal("expected context 1 to be accepted")
	}
	if ctx.TransferSyntax != ImplicitVRLittleEndian {
		t.Fatalf("negotiated transfer syntax = %q, want %q", ctx.TransferSyntax, ImplicitVRLittleEndian)
	}
	if assoc.CallingAETitle() != "MODALITY1" {
		t.Fatalf("CallingAETitle = %q, want %q", assoc.CallingAETitle(), "MODALITY1")
	}
}

func TestNegotiateRejectsUnsupportedAbstractSyntax(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	rqBytes := buildAssociateRQ("STORE_SCP", "MODALITY1", []struct {
		id             byte
		abstractSyntax string
		transferSyntax string
	}{
		{1, "1.2.840.10008.5.1.4.1.2.1.1", ImplicitVRLittleEndian}, // Patient Root Q/R FIND, unsupported
	})

	go func() { client.Write(rqBytes) }()

	rq, err := readPDU(server)
	if err != nil {
		t.Fatalf("readPDU: %v", err)
	}

	go func() {
		header := make([]byte, 6)
		client.Read(header)
		length := binary.BigEndian.Uint32(header[2:6])
		body := make([]byte, length)
		client.Read(body)
	}()

	assoc, err := negotiate(server, rq, "STORE_SCP", IsSupportedAbstractSyntax, zerolog.Nop())
	if err != nil {
		t.Fatalf("negotiate: %v", err)
	}

	if assoc.HasAcceptedContext() {
		t.Fatal("expected no accepted presentation contexts for unsupported abstract syntax")
	}
}
