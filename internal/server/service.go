// Package server exposes extraction and record operations over gRPC and an
// HTTP gateway. Both transports share one Service.
package server

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/joseph-ayodele/form-digitizer/constants"
	"github.com/joseph-ayodele/form-digitizer/internal/common"
	"github.com/joseph-ayodele/form-digitizer/internal/entity"
	"github.com/joseph-ayodele/form-digitizer/internal/export"
	"github.com/joseph-ayodele/form-digitizer/internal/pipeline"
	"github.com/joseph-ayodele/form-digitizer/internal/records"
	"github.com/joseph-ayodele/form-digitizer/internal/templates"
)

const (
	FormatJSON = "json"
	FormatXLSX = "xlsx"

	contentTypeJSON = "application/json"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Service is the transport-neutral API.
type Service struct {
	proc          *pipeline.Processor
	records       *records.Service
	exporter      *export.Service
	maxImageBytes int64
	logger        *slog.Logger
}

type Option func(*Service)

// WithMaxImageBytes caps uploaded images. Defaults to constants.DefaultMaxImageBytes.
func WithMaxImageBytes(n int64) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxImageBytes = n
		}
	}
}

func NewService(proc *pipeline.Processor, recs *records.Service, exporter *export.Service, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if exporter == nil {
		exporter = export.NewService(logger)
	}
	s := &Service{
		proc:          proc,
		records:       recs,
		exporter:      exporter,
		maxImageBytes: constants.DefaultMaxImageBytes,
		logger:        logger,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ExtractRequest is one extraction, optionally persisted for OwnerID.
type ExtractRequest struct {
	TemplateName string
	Image        []byte
	FileName     string
	Save         bool
	OwnerID      string
}

// ExtractResponse carries the record when the extraction was saved.
type ExtractResponse struct {
	Template string            `json:"template"`
	Degraded bool              `json:"degraded"`
	Filled   int               `json:"filled"`
	Fields   entity.FormFields `json:"fields"`
	Record   *entity.FormView  `json:"record,omitempty"`
}

func (s *Service) Templates() []*templates.Template {
	return s.proc.Templates()
}

func (s *Service) Extract(ctx context.Context, req ExtractRequest) (*ExtractResponse, error) {
	start := time.Now()
	if int64(len(req.Image)) > s.maxImageBytes {
		return nil, common.InvalidInput("image is %d bytes, limit is %d", len(req.Image), s.maxImageBytes)
	}
	if req.Save {
		// fail before spending a provider call
		if err := common.NewValidator().Field("owner_id", req.OwnerID, common.Required).Err(); err != nil {
			return nil, err
		}
	}

	res, err := s.proc.Extract(ctx, req.Image, strings.TrimSpace(req.TemplateName))
	if err != nil {
		return nil, err
	}
	out := &ExtractResponse{
		Template: res.Template,
		Degraded: res.Degraded,
		Filled:   res.Fields.Filled(),
		Fields:   res.Fields,
	}
	if req.Save {
		view, err := s.records.Save(ctx, records.SaveRequest{
			OwnerID:        req.OwnerID,
			TemplateName:   res.Template,
			SourceFilename: req.FileName,
			Fields:         res.Fields.AsMap(),
		})
		if err != nil {
			return nil, err
		}
		out.Record = view
	}
	s.logger.Info("server.extract.ok",
		"req_id", common.RequestIDFromContext(ctx),
		"template", res.Template,
		"saved", req.Save,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

// ExportRecord renders one owned record. It returns the payload and its content type.
func (s *Service) ExportRecord(ctx context.Context, ownerID, id, format string) ([]byte, string, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = FormatJSON
	}
	if format != FormatJSON && format != FormatXLSX {
		return nil, "", common.InvalidInput("unsupported export format %q", format)
	}
	view, err := s.records.Get(ctx, ownerID, id)
	if err != nil {
		return nil, "", err
	}
	if format == FormatXLSX {
		b, err := s.exporter.RecordXLSX(view)
		return b, contentTypeXLSX, err
	}
	b, err := export.RecordJSON(view)
	return b, contentTypeJSON, err
}

// ExportRecords renders every record of the owner as one workbook.
func (s *Service) ExportRecords(ctx context.Context, ownerID string) ([]byte, error) {
	views, err := s.records.List(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return s.exporter.RecordsXLSX(views)
}

// exportFileName is the attachment name for an exported record.
func exportFileName(id, format string) string {
	return "form-" + id + "." + format
}
