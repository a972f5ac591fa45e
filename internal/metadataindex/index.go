package metadataindex

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/noctis-health/pacs-core/internal/errs"
)

// postgresUniqueViolation is PS3-unrelated Postgres error code 23505,
// raised when a concurrent insert loses a race against a unique index (the
// SOP Instance UID primary key, here) that a preceding SELECT didn't see.
const postgresUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == postgresUniqueViolation
}

// Index is the Metadata Index's data access surface, backed by a single
// *gorm.DB handle.
type Index struct {
	db *gorm.DB
}

// New wraps an already-connected *gorm.DB.
func New(db *gorm.DB) *Index {
	return &Index{db: db}
}

// UpsertPatient inserts a Patient row if absent, or is a no-op if the
// PatientID already exists. Patient demographic fields are not updated here:
// conflicting demographics across associations are outside this package's
// remit.
func (idx *Index) UpsertPatient(ctx context.Context, p *Patient) error {
	return idx.upsertPatient(ctx, idx.db, p)
}

func (idx *Index) upsertPatient(ctx context.Context, tx *gorm.DB, p *Patient) error {
	var existing Patient
	err := tx.WithContext(ctx).Where("patient_id = ?", p.PatientID).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := tx.WithContext(ctx).Create(p).Error; err != nil {
			return errs.Wrap(errs.KindProcessingFailure, "insert patient", err)
		}
		return nil
	case err != nil:
		return errs.Wrap(errs.KindProcessingFailure, "lookup patient", err)
	default:
		return nil
	}
}

// UpsertStudy inserts a Study row if absent. If present, updates mutable
// descriptive fields but never regresses Status backward relative to the
// caller's intent — callers that only know "Received" should not downgrade
// a Study a later pipeline stage has already advanced to Processing/Ready.
func (idx *Index) UpsertStudy(ctx context.Context, s *Study) error {
	return idx.upsertStudy(ctx, idx.db, s)
}

func (idx *Index) upsertStudy(ctx context.Context, tx *gorm.DB, s *Study) error {
	var existing Study
	err := tx.WithContext(ctx).Where("study_instance_uid = ?", s.StudyInstanceUID).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if s.Status == "" {
			s.Status = StudyReceived
		}
		if err := tx.WithContext(ctx).Create(s).Error; err != nil {
			return errs.Wrap(errs.KindProcessingFailure, "insert study", err)
		}
		return nil
	case err != nil:
		return errs.Wrap(errs.KindProcessingFailure, "lookup study", err)
	default:
		updates := map[string]any{}
		if s.AccessionNumber != "" {
			updates["accession_number"] = s.AccessionNumber
		}
		if s.StudyDescription != "" {
			updates["study_description"] = s.StudyDescription
		}
		if s.StudyDate != nil {
			updates["study_date"] = s.StudyDate
		}
		if s.ReferringPhysician != "" {
			updates["referring_physician"] = s.ReferringPhysician
		}
		// Modality is copied from the first series only; a later series
		// of a different modality must not overwrite it.
		if existing.Modality == "" && s.Modality != "" {
			updates["modality"] = s.Modality
		}
		if len(updates) == 0 {
			return nil
		}
		if err := tx.WithContext(ctx).Model(&Study{}).
			Where("study_instance_uid = ?", s.StudyInstanceUID).
			Updates(updates).Error; err != nil {
			return errs.Wrap(errs.KindProcessingFailure, "update study", err)
		}
		return nil
	}
}

// SetStudyStatus transitions a Study to a new status.
func (idx *Index) SetStudyStatus(ctx context.Context, studyUID string, status StudyStatus) error {
	res := idx.db.WithContext(ctx).Model(&Study{}).
		Where("study_instance_uid = ?", studyUID).
		Update("status", status)
	if res.Error != nil {
		return errs.Wrap(errs.KindProcessingFailure, "update study status", res.Error)
	}
	if res.RowsAffected == 0 {
		return errs.New(errs.KindNotFound, "study not found").WithDetails(map[string]any{"studyInstanceUID": studyUID})
	}
	return nil
}

// UpsertSeries inserts a Series row if absent, updating descriptive fields
// otherwise.
func (idx *Index) UpsertSeries(ctx context.Context, sr *Series) error {
	return idx.upsertSeries(ctx, idx.db, sr)
}

func (idx *Index) upsertSeries(ctx context.Context, tx *gorm.DB, sr *Series) error {
	var existing Series
	err := tx.WithContext(ctx).Where("series_instance_uid = ?", sr.SeriesInstanceUID).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := tx.WithContext(ctx).Create(sr).Error; err != nil {
			return errs.Wrap(errs.KindProcessingFailure, "insert series", err)
		}
		return nil
	case err != nil:
		return errs.Wrap(errs.KindProcessingFailure, "lookup series", err)
	default:
		updates := map[string]any{}
		if sr.SeriesDescription != "" {
			updates["series_description"] = sr.SeriesDescription
		}
		if sr.Modality != "" {
			updates["modality"] = sr.Modality
		}
		if sr.SeriesNumber != 0 {
			updates["series_number"] = sr.SeriesNumber
		}
		if sr.BodyPartExamined != "" {
			updates["body_part_examined"] = sr.BodyPartExamined
		}
		if sr.PixelSpacing != "" {
			updates["pixel_spacing"] = sr.PixelSpacing
		}
		if sr.SliceThickness != 0 {
			updates["slice_thickness"] = sr.SliceThickness
		}
		if len(updates) == 0 {
			return nil
		}
		if err := tx.WithContext(ctx).Model(&Series{}).
			Where("series_instance_uid = ?", sr.SeriesInstanceUID).
			Updates(updates).Error; err != nil {
			return errs.Wrap(errs.KindProcessingFailure, "update series", err)
		}
		return nil
	}
}

// InsertInstance inserts a new Instance row. If the SOP Instance UID already
// exists, it returns isDuplicate=true and does not error or modify the
// existing row — duplicate C-STORE delivery is expected behavior, not a
// failure.
func (idx *Index) InsertInstance(ctx context.Context, in *Instance) (isDuplicate bool, err error) {
	var existing Instance
	lookupErr := idx.db.WithContext(ctx).Where("sop_instance_uid = ?", in.SOPInstanceUID).First(&existing).Error
	switch {
	case errors.Is(lookupErr, gorm.ErrRecordNotFound):
		if err := idx.db.WithContext(ctx).Create(in).Error; err != nil {
			if isUniqueViolation(err) {
				return true, nil
			}
			return false, errs.Wrap(errs.KindProcessingFailure, "insert instance", err)
		}
		return false, nil
	case lookupErr != nil:
		return false, errs.Wrap(errs.KindProcessingFailure, "lookup instance", lookupErr)
	default:
		return true, nil
	}
}

// IngestInstance performs the Patient/Study/Series upsert and Instance
// insert inside a single transaction (begin, mutate, panic-safe rollback,
// commit) rather than auto-committing each statement independently.
func (idx *Index) IngestInstance(ctx context.Context, p *Patient, s *Study, sr *Series, in *Instance) (isDuplicate bool, err error) {
	txErr := idx.db.Transaction(func(tx *gorm.DB) error {
		if err := idx.upsertPatient(ctx, tx, p); err != nil {
			return err
		}
		if err := idx.upsertStudy(ctx, tx, s); err != nil {
			return err
		}
		if err := idx.upsertSeries(ctx, tx, sr); err != nil {
			return err
		}

		var existing Instance
		lookupErr := tx.WithContext(ctx).Where("sop_instance_uid = ?", in.SOPInstanceUID).First(&existing).Error
		switch {
		case errors.Is(lookupErr, gorm.ErrRecordNotFound):
			// Nested in its own savepoint: a unique-violation here must not
			// abort the outer transaction, which still needs to commit the
			// Patient/Study/Series upserts above.
			createErr := tx.Transaction(func(stx *gorm.DB) error {
				return stx.WithContext(ctx).Create(in).Error
			})
			if createErr != nil {
				if isUniqueViolation(createErr) {
					isDuplicate = true
					return nil
				}
				return errs.Wrap(errs.KindProcessingFailure, "insert instance", createErr)
			}
			isDuplicate = false
			return nil
		case lookupErr != nil:
			return errs.Wrap(errs.KindProcessingFailure, "lookup instance", lookupErr)
		default:
			isDuplicate = true
			return nil
		}
	})
	if txErr != nil {
		return false, txErr
	}
	return isDuplicate, nil
}

// ListSeries returns a Study's series ordered by SeriesNumber then UID, the
// stable order viewers expect.
func (idx *Index) ListSeries(ctx context.Context, studyUID string) ([]Series, error) {
	var rows []Series
	if err := idx.db.WithContext(ctx).
		Where("study_instance_uid = ?", studyUID).
		Order("series_number ASC, series_instance_uid ASC").
		Find(&rows).Error; err != nil {
		return nil, errs.Wrap(errs.KindProcessingFailure, "list series", err)
	}
	return rows, nil
}

// ListInstances returns a Series' instances ordered by InstanceNumber then
// UID.
func (idx *Index) ListInstances(ctx context.Context, seriesUID string) ([]Instance, error) {
	var rows []Instance
	if err := idx.db.WithContext(ctx).
		Where("series_instance_uid = ?", seriesUID).
		Order("instance_number ASC, sop_instance_uid ASC").
		Find(&rows).Error; err != nil {
		return nil, errs.Wrap(errs.KindProcessingFailure, "list instances", err)
	}
	return rows, nil
}

// GetSeries fetches a single Series by Series Instance UID.
func (idx *Index) GetSeries(ctx context.Context, seriesInstanceUID string) (*Series, error) {
	var row Series
	err := idx.db.WithContext(ctx).Where("series_instance_uid = ?", seriesInstanceUID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.New(errs.KindNotFound, "series not found").
			WithDetails(map[string]any{"seriesInstanceUID": seriesInstanceUID})
	}
	if err != nil {
		return nil, errs.Wrap(errs.KindProcessingFailure, "get series", err)
	}
	return &row, nil
}

// GetInstance fetches a single Instance by SOP Instance UID.
func (idx *Index) GetInstance(ctx context.Context, sopInstanceUID string) (*Instance, error) {
	var row Instance
	err := idx.db.WithContext(ctx).Where("sop_instance_uid = ?", sopInstanceUID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.New(errs.KindNotFound, "instance not found").
			WithDetails(map[string]any{"sopInstanceUID": sopInstanceUID})
	}
	if err != nil {
		return nil, errs.Wrap(errs.KindProcessingFailure, "get instance", err)
	}
	return &row, nil
}

// RecordEvent inserts an IngestEvent row. It never returns a domain error a
// caller should act on beyond logging: a failure to record an audit event
// must not fail the underlying C-STORE.
func (idx *Index) RecordEvent(ctx context.Context, ev *IngestEvent) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	if err := idx.db.WithContext(ctx).Create(ev).Error; err != nil {
		return errs.Wrap(errs.KindProcessingFailure, "record ingest event", err)
	}
	return nil
}

// RemoveInstance deletes an Instance row only; it does not touch the
// instance file. The C-STORE handler calls it when finalizing the staged
// file fails after the row was committed. Not exposed over HTTP in this
// version.
func (idx *Index) RemoveInstance(ctx context.Context, sopInstanceUID string) error {
	if err := idx.db.WithContext(ctx).Where("sop_instance_uid = ?", sopInstanceUID).Delete(&Instance{}).Error; err != nil {
		return errs.Wrap(errs.KindProcessingFailure, "remove instance row", err)
	}
	return nil
}
