// Package metadataindex is the Metadata Index: the transactional system of
// record for patients, studies, series, instances, and ingest events.
package metadataindex

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StudyStatus is the lifecycle state of a Study row.
type StudyStatus string

const (
	StudyReceived   StudyStatus = "Received"
	StudyProcessing StudyStatus = "Processing"
	StudyReady      StudyStatus = "Ready"
	StudyFailed     StudyStatus = "Failed"
)

// IngestResult is the outcome recorded for a single C-STORE attempt.
type IngestResult string

const (
	IngestStored            IngestResult = "Stored"
	IngestDuplicateIgnored  IngestResult = "DuplicateIgnored"
	IngestRejected          IngestResult = "Rejected"
)

// Patient is the top of the UID hierarchy, identified by DICOM PatientID.
type Patient struct {
	PatientID string `gorm:"primaryKey;column:patient_id"`
	Name      string
	BirthDate string
	Sex       string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Patient) TableName() string { return "patients" }

// Study belongs to a Patient by PatientID, never by a foreign-key object
// reference, to avoid the cyclic parent/child graphs GORM struggles with.
type Study struct {
	StudyInstanceUID   string `gorm:"primaryKey;column:study_instance_uid"`
	PatientID          string `gorm:"column:patient_id;index"`
	AccessionNumber    string
	StudyDate          *time.Time
	StudyDescription   string
	ReferringPhysician string
	// Modality is copied from the study's first series and never
	// overwritten by a later series of a different modality.
	Modality  string
	Status    StudyStatus `gorm:"default:Received"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Study) TableName() string { return "studies" }

// Series belongs to a Study by StudyInstanceUID.
type Series struct {
	SeriesInstanceUID string `gorm:"primaryKey;column:series_instance_uid"`
	StudyInstanceUID  string `gorm:"column:study_instance_uid;index"`
	Modality          string
	SeriesNumber      int
	SeriesDescription string
	BodyPartExamined  string
	// PixelSpacing is the raw DS-encoded "row\col" string (e.g. "0.5\0.5"),
	// kept as delivered rather than split into two floats.
	PixelSpacing   string
	SliceThickness float64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (Series) TableName() string { return "series" }

// Instance belongs to a Series by SeriesInstanceUID, and carries the
// rendering attributes the Image Delivery Service needs without re-reading
// them from the DICOM file: rescale slope/intercept, the default VOI window,
// and the photometric interpretation. Pixel data is still decoded from the
// file on a cache miss.
type Instance struct {
	SOPInstanceUID             string `gorm:"primaryKey;column:sop_instance_uid"`
	SeriesInstanceUID          string `gorm:"column:series_instance_uid;index"`
	SOPClassUID                string
	InstanceNumber             int
	StorageKey                 string
	FileSize                   int64
	SHA256                     string
	Rows                       int
	Columns                    int
	BitsAllocated              int
	PixelRepresentation        int
	RescaleSlope               float64 `gorm:"default:1"`
	RescaleIntercept           float64 `gorm:"default:0"`
	DefaultWindowCenter        *float64
	DefaultWindowWidth         *float64
	PhotometricInterpretation  string
	TransferSyntaxUID          string
	CreatedAt                  time.Time
	UpdatedAt                  time.Time
}

func (Instance) TableName() string { return "instances" }

// IngestEvent records the outcome of a single association's C-STORE attempt,
// keyed by a generated UUID.
type IngestEvent struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey"`
	Timestamp       time.Time
	CallingAETitle  string
	CalledAETitle   string
	PeerAddr        string
	SOPInstanceUID  string
	Result          IngestResult
	FailureReason   string
	CreatedAt       time.Time
}

func (IngestEvent) TableName() string { return "ingest_events" }

// BeforeCreate assigns a UUID when the caller didn't already set one.
func (e *IngestEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// Models lists every model the Metadata Index owns, for AutoMigrate.
func Models() []any {
	return []any{
		&Patient{},
		&Study{},
		&Series{},
		&Instance{},
		&IngestEvent{},
	}
}
