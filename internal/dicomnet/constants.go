// Package dicomnet implements the DICOM Upper Layer Protocol transport: PDU
// framing, association negotiation, and DIMSE command encoding over a raw
// TCP connection. It knows nothing about storage or indexing — those are
// supplied by a Handler.
package dicomnet

// PDU types, DICOM PS3.8 Section 9.3.
const (
	PDUTypeAssociateRQ byte = 0x01
	PDUTypeAssociateAC byte = 0x02
	PDUTypeAssociateRJ byte = 0x03
	PDUTypePDataTF     byte = 0x04
	PDUTypeReleaseRQ   byte = 0x05
	PDUTypeReleaseRP   byte = 0x06
	PDUTypeAbort       byte = 0x07
)

// Presentation context negotiation results.
const (
	PresentationAcceptance           byte = 0x00
	PresentationRejectAbstractSyntax byte = 0x03
	PresentationRejectTransferSyntax byte = 0x04
)

// A-ASSOCIATE-RJ result/source/reason, used for the allow-list and
// max-associations rejections this codebase adds on top of the base
// protocol.
const (
	RejectResultPermanent byte = 0x01

	RejectSourceServiceUser byte = 0x01

	RejectReasonNoReasonGiven        byte = 0x01
	RejectReasonCallingAENotRecognized byte = 0x03
	RejectReasonLocalLimitExceeded   byte = 0x02
)

// DIMSE command fields this codebase implements. C-FIND/C-MOVE/C-GET are
// intentionally absent.
const (
	CommandCStoreRQ  uint16 = 0x0001
	CommandCStoreRSP uint16 = 0x8001
	CommandCEchoRQ   uint16 = 0x0030
	CommandCEchoRSP  uint16 = 0x8030
)

// DIMSE status codes, DICOM PS3.7 Annex C.
const (
	StatusSuccess                 uint16 = 0x0000
	StatusRefusedOutOfResources   uint16 = 0xA700
	StatusErrorCannotUnderstand   uint16 = 0xC000
	StatusErrorDataSetDoesNotMatchSOPClass uint16 = 0xA900
	StatusDuplicateSOPInstance    uint16 = 0x0111
	StatusProcessingFailure       uint16 = 0xC001
)

// CommandDataSetType sentinel meaning "no dataset present" per PS3.7.
const NoDataSetPresent uint16 = 0x0101

// Well-known UIDs.
const (
	ApplicationContextUID = "1.2.840.10008.3.1.1.1"
	VerificationSOPClass  = "1.2.840.10008.1.1"

	ImplicitVRLittleEndian = "1.2.840.10008.1.2"
	ExplicitVRLittleEndian = "1.2.840.10008.1.2.1"
	JPEGBaselineProcess1   = "1.2.840.10008.1.2.4.50"
	JPEGLosslessProcess14  = "1.2.840.10008.1.2.4.70"
	JPEG2000Lossless       = "1.2.840.10008.1.2.4.90"
	RLELossless            = "1.2.840.10008.1.2.5"

	ImplementationClassUID  = "1.2.826.0.1.3680043.9.7433.1.1"
	ImplementationVersion   = "NOCTIS_PACS_1.0"
)

// DefaultTransferSyntaxes is the set this SCP proposes/accepts for every
// storage presentation context: both uncompressed syntaxes plus one
// compressed syntax, per this codebase's transfer-syntax support policy.
func DefaultTransferSyntaxes() []string {
	return []string{
		ImplicitVRLittleEndian,
		ExplicitVRLittleEndian,
		JPEGBaselineProcess1,
	}
}
