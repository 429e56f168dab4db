// Package records holds the save, view, edit and delete operations on
// persisted form records. Every operation is scoped to an owner.
package records

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/form-digitizer/internal/common"
	"github.com/joseph-ayodele/form-digitizer/internal/entity"
	"github.com/joseph-ayodele/form-digitizer/internal/normalize"
	"github.com/joseph-ayodele/form-digitizer/internal/repository"
	"github.com/joseph-ayodele/form-digitizer/internal/templates"
)

const maxFilenameLength = 255

// Service handles form record business logic.
type Service struct {
	repo       repository.FormRecordRepository
	registry   *templates.Registry
	normalizer *normalize.Normalizer
	logger     *slog.Logger
}

// NewService creates a new record service.
func NewService(repo repository.FormRecordRepository, registry *templates.Registry, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:       repo,
		registry:   registry,
		normalizer: normalize.NewNormalizer(logger),
		logger:     logger,
	}
}

// SaveRequest represents record creation parameters. Fields may be partial
// or carry unknown keys; it is normalized to the template before storing.
type SaveRequest struct {
	OwnerID        string
	TemplateName   string
	SourceFilename string
	Fields         map[string]any
}

// Save stores a new record. Saving the same data twice creates two records.
func (s *Service) Save(ctx context.Context, req SaveRequest) (*entity.FormView, error) {
	v := common.NewValidator().
		Field("owner_id", req.OwnerID, common.Required).
		Field("template", req.TemplateName, common.Required).
		Field("source_filename", req.SourceFilename, common.MaxLength(maxFilenameLength))
	if err := v.Err(); err != nil {
		s.logger.Warn("records.save.invalid", "error", err)
		return nil, err
	}
	tpl, err := s.template(req.TemplateName)
	if err != nil {
		return nil, err
	}

	fields := s.normalizer.Edited("", req.Fields, tpl)
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, common.NewAppError(common.CodeInvalidInput, "encode record fields", err)
	}

	rec, err := s.repo.Create(ctx, &entity.FormRecord{
		OwnerID:        strings.TrimSpace(req.OwnerID),
		TemplateName:   tpl.Name,
		SourceFilename: strings.TrimSpace(req.SourceFilename),
		Data:           data,
	})
	if err != nil {
		s.logger.Error("records.save.failed", "owner_id", req.OwnerID, "template", tpl.Name, "error", err)
		return nil, err
	}
	s.logger.Info("records.save.ok",
		"record_id", rec.ID,
		"owner_id", rec.OwnerID,
		"template", tpl.Name,
		"filled", fields.Filled(),
	)
	return view(rec, fields), nil
}

// Get returns the record normalized to its template. Records owned by
// someone else are reported as not found.
func (s *Service) Get(ctx context.Context, ownerID, id string) (*entity.FormView, error) {
	rec, err := s.owned(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	return s.toView(rec)
}

// Record returns the stored record as persisted, after the ownership check.
func (s *Service) Record(ctx context.Context, ownerID, id string) (*entity.FormRecord, error) {
	return s.owned(ctx, ownerID, id)
}

// List returns the owner's records, newest first.
func (s *Service) List(ctx context.Context, ownerID string) ([]*entity.FormView, error) {
	if err := common.NewValidator().Field("owner_id", ownerID, common.Required).Err(); err != nil {
		return nil, err
	}
	recs, err := s.repo.ListByOwner(ctx, strings.TrimSpace(ownerID))
	if err != nil {
		s.logger.Error("records.list.failed", "owner_id", ownerID, "error", err)
		return nil, err
	}
	out := make([]*entity.FormView, 0, len(recs))
	for _, rec := range recs {
		fv, err := s.toView(rec)
		if err != nil {
			// one unreadable record should not hide the rest
			s.logger.Warn("records.list.skip", "record_id", rec.ID, "error", err)
			continue
		}
		out = append(out, fv)
	}
	s.logger.Debug("records.list.ok", "owner_id", ownerID, "count", len(out))
	return out, nil
}

// Update replaces the record's values in place. The template and source
// filename are kept.
func (s *Service) Update(ctx context.Context, ownerID, id string, fields map[string]any) (*entity.FormView, error) {
	rec, err := s.owned(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	tpl, err := s.template(rec.TemplateName)
	if err != nil {
		return nil, err
	}

	normalized := s.normalizer.Edited(rec.ID.String(), fields, tpl)
	data, err := json.Marshal(normalized)
	if err != nil {
		return nil, common.NewAppError(common.CodeInvalidInput, "encode record fields", err)
	}
	updated, err := s.repo.UpdateData(ctx, rec.ID, data)
	if err != nil {
		s.logger.Error("records.update.failed", "record_id", rec.ID, "error", err)
		return nil, err
	}
	s.logger.Info("records.update.ok", "record_id", rec.ID, "owner_id", rec.OwnerID, "filled", normalized.Filled())
	return view(updated, normalized), nil
}

// Delete removes the record after the ownership check.
func (s *Service) Delete(ctx context.Context, ownerID, id string) error {
	rec, err := s.owned(ctx, ownerID, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, rec.ID); err != nil {
		s.logger.Error("records.delete.failed", "record_id", rec.ID, "error", err)
		return err
	}
	s.logger.Info("records.delete.ok", "record_id", rec.ID, "owner_id", rec.OwnerID)
	return nil
}

// owned loads a record and hides it unless it belongs to ownerID.
func (s *Service) owned(ctx context.Context, ownerID, id string) (*entity.FormRecord, error) {
	v := common.NewValidator().
		Field("owner_id", ownerID, common.Required).
		Field("id", strings.TrimSpace(id), common.Required, common.UUID)
	if err := v.Err(); err != nil {
		return nil, err
	}
	rid := uuid.MustParse(strings.TrimSpace(id))

	rec, err := s.repo.GetByID(ctx, rid)
	if err != nil {
		return nil, err
	}
	if rec.OwnerID != strings.TrimSpace(ownerID) {
		s.logger.Warn("records.owner.mismatch", "record_id", rid, "owner_id", ownerID)
		return nil, common.NotFound("form record %s not found", rid)
	}
	return rec, nil
}

func (s *Service) toView(rec *entity.FormRecord) (*entity.FormView, error) {
	tpl, err := s.template(rec.TemplateName)
	if err != nil {
		s.logger.Error("records.template.missing", "record_id", rec.ID, "template", rec.TemplateName)
		return nil, err
	}
	fields, err := s.normalizer.Stored(rec.ID.String(), rec.Data, tpl)
	if err != nil {
		return nil, err
	}
	return view(rec, fields), nil
}

func (s *Service) template(name string) (*templates.Template, error) {
	tpl, err := s.registry.Get(strings.TrimSpace(name))
	if err != nil {
		return nil, common.NewAppError(common.CodeInvalidInput, "unknown template "+name, common.ErrInvalidInput)
	}
	return tpl, nil
}

func view(rec *entity.FormRecord, fields entity.FormFields) *entity.FormView {
	return &entity.FormView{
		ID:             rec.ID,
		OwnerID:        rec.OwnerID,
		TemplateName:   rec.TemplateName,
		SourceFilename: rec.SourceFilename,
		Fields:         fields,
		CreatedAt:      rec.CreatedAt,
		UpdatedAt:      rec.UpdatedAt,
	}
}
