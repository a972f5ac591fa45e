// Package dicomscp implements the C-STORE/C-ECHO Service Class Provider
// logic invoked by internal/dicomnet for each accepted association: parsing
// the incoming dataset, writing it through the Object Store, and recording
// it in the Metadata Index.
package dicomscp

import (
	"bytes"
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/suyashkumar/dicom"

	"github.com/noctis-health/pacs-core/internal/dicomnet"
	"github.com/noctis-health/pacs-core/internal/metadataindex"
	"github.com/noctis-health/pacs-core/internal/objectstore"
)

// Service implements dicomnet.Handler against an Object Store and a
// Metadata Index.
type Service struct {
	store *objectstore.Store
	index *metadataindex.Index
	log   zerolog.Logger
}

// NewService builds a Service.
func NewService(store *objectstore.Store, index *metadataindex.Index, log zerolog.Logger) *Service {
	return &Service{store: store, index: index, log: log.With().Str("component", "dicomscp.service").Logger()}
}

// OnCEchoRQ always succeeds: reachability is the only thing C-ECHO verifies,
// and accepting the association already proved that.
func (svc *Service) OnCEchoRQ(ctx context.Context, assoc *dicomnet.Association) error {
	svc.log.Info().Str("calling_ae", assoc.CallingAETitle()).Str("remote_addr", assoc.RemoteAddr()).Msg("C-ECHO")
	return nil
}

// OnCStoreRQ parses the dataset, stages it to the Object Store, commits the
// Patient/Study/Series/Instance rows to the Metadata Index inside one
// transaction, and only then finalizes the staged file into its canonical
// location. If finalizing fails, the Instance row is deleted again and
// StatusProcessingFailure is returned.
func (svc *Service) OnCStoreRQ(ctx context.Context, assoc *dicomnet.Association, sopClassUID, sopInstanceUID, transferSyntaxUID string, dataset []byte) (uint16, error) {
	log := svc.log.With().
		Str("calling_ae", assoc.CallingAETitle()).
		Str("sop_instance_uid", sopInstanceUID).
		Logger()

	part10 := buildPart10File(transferSyntaxUID, sopClassUID, sopInstanceUID, dataset)

	ds, err := dicom.Parse(bytes.NewReader(part10), int64(len(part10)), nil)
	if err != nil {
		svc.recordFailure(ctx, assoc, sopInstanceUID, "parse dataset: "+err.Error())
		return dicomnet.StatusErrorCannotUnderstand, fmt.Errorf("dicomscp: parse dataset: %w", err)
	}

	attrs := parseAttributes(ds)
	if attrs.SOPInstanceUID == "" {
		attrs.SOPInstanceUID = sopInstanceUID
	}
	if attrs.SOPClassUID == "" {
		attrs.SOPClassUID = sopClassUID
	}
	if attrs.PatientID == "" || attrs.StudyInstanceUID == "" || attrs.SeriesInstanceUID == "" || attrs.SOPInstanceUID == "" {
		svc.recordFailure(ctx, assoc, attrs.SOPInstanceUID, "dataset missing patient/study/series/instance identifiers")
		return dicomnet.StatusErrorCannotUnderstand, fmt.Errorf("dicomscp: dataset missing required UID hierarchy")
	}

	sf, err := svc.store.StageNew()
	if err != nil {
		svc.recordFailure(ctx, assoc, attrs.SOPInstanceUID, "stage file: "+err.Error())
		return dicomnet.StatusRefusedOutOfResources, err
	}
	if _, err := sf.Write(part10); err != nil {
		svc.store.Abandon(sf)
		svc.recordFailure(ctx, assoc, attrs.SOPInstanceUID, "write staged file: "+err.Error())
		return dicomnet.StatusRefusedOutOfResources, err
	}
	digest := sf.Digest()

	storageKey := svc.store.CanonicalPath(attrs.PatientID, attrs.StudyInstanceUID, attrs.SeriesInstanceUID, attrs.SOPInstanceUID)

	patient := &metadataindex.Patient{
		PatientID: attrs.PatientID,
		Name:      attrs.PatientName,
		BirthDate: attrs.PatientBirthDate,
		Sex:       attrs.PatientSex,
	}
	study := &metadataindex.Study{
		StudyInstanceUID:   attrs.StudyInstanceUID,
		PatientID:          attrs.PatientID,
		AccessionNumber:    attrs.AccessionNumber,
		StudyDescription:   attrs.StudyDescription,
		ReferringPhysician: attrs.ReferringPhysicianName,
		Modality:           attrs.Modality,
	}
	series := &metadataindex.Series{
		SeriesInstanceUID: attrs.SeriesInstanceUID,
		StudyInstanceUID:  attrs.StudyInstanceUID,
		Modality:          attrs.Modality,
		SeriesNumber:      attrs.SeriesNumber,
		SeriesDescription: attrs.SeriesDescription,
		BodyPartExamined:  attrs.BodyPartExamined,
		PixelSpacing:      attrs.PixelSpacing,
		SliceThickness:    attrs.SliceThickness,
	}
	instance := &metadataindex.Instance{
		SOPInstanceUID:            attrs.SOPInstanceUID,
		SeriesInstanceUID:         attrs.SeriesInstanceUID,
		SOPClassUID:               attrs.SOPClassUID,
		InstanceNumber:            attrs.InstanceNumber,
		StorageKey:                storageKey,
		FileSize:                  int64(len(part10)),
		SHA256:                    digest,
		Rows:                      attrs.Rows,
		Columns:                   attrs.Columns,
		BitsAllocated:             attrs.BitsAllocated,
		PixelRepresentation:       attrs.PixelRepresentation,
		RescaleSlope:              attrs.RescaleSlope,
		RescaleIntercept:          attrs.RescaleIntercept,
		DefaultWindowCenter:       attrs.WindowCenter,
		DefaultWindowWidth:        attrs.WindowWidth,
		PhotometricInterpretation: attrs.PhotometricInterpretation,
		TransferSyntaxUID:         transferSyntaxUID,
	}

	isDuplicate, err := svc.index.IngestInstance(ctx, patient, study, series, instance)
	if err != nil {
		svc.store.Abandon(sf)
		svc.recordFailure(ctx, assoc, attrs.SOPInstanceUID, "index instance: "+err.Error())
		return dicomnet.StatusProcessingFailure, err
	}

	if isDuplicate {
		svc.store.Abandon(sf)
		svc.recordEvent(ctx, assoc, attrs.SOPInstanceUID, metadataindex.IngestDuplicateIgnored, "")
		log.Info().Msg("duplicate SOP instance ignored")
		return dicomnet.StatusSuccess, nil
	}

	if _, err := svc.store.FinalizeAt(sf, attrs.PatientID, attrs.StudyInstanceUID, attrs.SeriesInstanceUID, attrs.SOPInstanceUID, digest); err != nil {
		_ = svc.index.RemoveInstance(ctx, attrs.SOPInstanceUID)
		svc.recordFailure(ctx, assoc, attrs.SOPInstanceUID, "finalize file: "+err.Error())
		return dicomnet.StatusProcessingFailure, err
	}

	svc.recordEvent(ctx, assoc, attrs.SOPInstanceUID, metadataindex.IngestStored, "")
	log.Info().Str("storage_key", storageKey).Msg("instance stored")
	return dicomnet.StatusSuccess, nil
}

func (svc *Service) recordFailure(ctx context.Context, assoc *dicomnet.Association, sopInstanceUID, reason string) {
	svc.recordEvent(ctx, assoc, sopInstanceUID, metadataindex.IngestRejected, reason)
}

func (svc *Service) recordEvent(ctx context.Context, assoc *dicomnet.Association, sopInstanceUID string, result metadataindex.IngestResult, failureReason string) {
	ev := &metadataindex.IngestEvent{
		CallingAETitle: assoc.CallingAETitle(),
		CalledAETitle:  assoc.CalledAETitle(),
		PeerAddr:       assoc.RemoteAddr(),
		SOPInstanceUID: sopInstanceUID,
		Result:         result,
		FailureReason:  failureReason,
	}
	if err := svc.index.RecordEvent(ctx, ev); err != nil {
		svc.log.Warn().Err(err).Str("sop_instance_uid", sopInstanceUID).Msg("failed to record ingest event")
	}
}
