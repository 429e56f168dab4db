package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/form-digitizer/internal/common"
	"github.com/joseph-ayodele/form-digitizer/internal/entity"
	"github.com/joseph-ayodele/form-digitizer/internal/llm"
	"github.com/joseph-ayodele/form-digitizer/internal/records"
)

const (
	OwnerHeader     = "X-Owner-ID"
	RequestIDHeader = "X-Request-ID"

	// multipart framing and JSON envelope allowance on top of the image limit
	bodyOverhead = 1 << 20
)

// Handler returns the HTTP gateway.
func (s *Service) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestContext)
	s.RegisterHTTP(r)
	return r
}

// RegisterHTTP mounts the gateway routes on r.
func (s *Service) RegisterHTTP(r chi.Router) {
	r.Get("/healthz", s.handleHealth)
	r.Get("/v1/templates", s.handleTemplates)
	r.Post("/v1/extract", s.handleExtract)

	r.Route("/v1/records", func(r chi.Router) {
		r.Post("/", s.handleSaveRecord)
		r.Get("/", s.handleListRecords)
		r.Get("/export.xlsx", s.handleExportAll)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetRecord)
			r.Put("/", s.handleUpdateRecord)
			r.Delete("/", s.handleDeleteRecord)
			r.Get("/export.{format}", s.handleExportRecord)
		})
	})
}

// requestContext attaches request and owner ids and logs each request.
func (s *Service) requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, rid := withRequestID(r.Context(), r.Header.Get(RequestIDHeader))
		if owner := strings.TrimSpace(r.Header.Get(OwnerHeader)); owner != "" {
			ctx = common.WithOwnerID(ctx, owner)
		}
		w.Header().Set(RequestIDHeader, rid)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r.WithContext(ctx))

		s.logger.Info("http.request",
			"req_id", rid,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	})
}

func withRequestID(ctx context.Context, rid string) (context.Context, string) {
	rid = strings.TrimSpace(rid)
	if rid == "" {
		rid = common.RequestIDFromContext(ctx)
	}
	if rid == "" {
		rid = uuid.New().String()
	}
	return common.WithRequestID(ctx, rid), rid
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type templateJSON struct {
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Sections    []sectionJSON `json:"sections"`
}

type sectionJSON struct {
	Name   string   `json:"name"`
	Fields []string `json:"fields"`
}

func (s *Service) handleTemplates(w http.ResponseWriter, _ *http.Request) {
	tpls := s.Templates()
	out := make([]templateJSON, 0, len(tpls))
	for _, t := range tpls {
		tj := templateJSON{Name: t.Name, Description: t.Description}
		for _, sec := range t.Sections {
			sj := sectionJSON{Name: sec.Name}
			for _, f := range sec.Fields {
				sj.Fields = append(sj.Fields, f.Name)
			}
			tj.Sections = append(tj.Sections, sj)
		}
		out = append(out, tj)
	}
	writeJSON(w, http.StatusOK, map[string]any{"templates": out})
}

// extractJSON is the camera-capture body: image is a data URL or bare base64.
type extractJSON struct {
	Template string `json:"template"`
	Image    string `json:"image"`
	FileName string `json:"file_name"`
	Save     bool   `json:"save"`
}

// handleExtract accepts a multipart upload (file part "image", form values
// "template", "save") or a JSON camera capture.
func (s *Service) handleExtract(w http.ResponseWriter, r *http.Request) {
	limit := s.maxImageBytes + bodyOverhead
	if !isMultipart(r) {
		limit = s.maxImageBytes/3*4 + bodyOverhead
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	req := ExtractRequest{OwnerID: common.OwnerIDFromContext(r.Context())}
	if isMultipart(r) {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			s.writeError(w, r, bodyError("parse multipart form", err))
			return
		}
		file, hdr, err := r.FormFile("image")
		if err != nil {
			s.writeError(w, r, common.InvalidInput("multipart field \"image\" is required"))
			return
		}
		defer file.Close()
		image, err := io.ReadAll(io.LimitReader(file, s.maxImageBytes+1))
		if err != nil {
			s.writeError(w, r, bodyError("read image", err))
			return
		}
		req.Image = image
		req.FileName = filepath.Base(hdr.Filename)
		req.TemplateName = r.FormValue("template")
		req.Save, _ = strconv.ParseBool(r.FormValue("save"))
	} else {
		var body extractJSON
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			s.writeError(w, r, bodyError("decode request body", err))
			return
		}
		image, _, err := llm.DecodeDataURL(body.Image)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		req.Image = image
		req.FileName = body.FileName
		req.TemplateName = body.Template
		req.Save = body.Save
	}
	if req.FileName == "" {
		req.FileName = "capture"
	}

	res, err := s.Extract(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if res.Record != nil {
		status = http.StatusCreated
	}
	writeJSON(w, status, res)
}

type saveJSON struct {
	Template string         `json:"template"`
	FileName string         `json:"file_name"`
	Fields   map[string]any `json:"fields"`
}

func (s *Service) handleSaveRecord(w http.ResponseWriter, r *http.Request) {
	var body saveJSON
	if err := decodeBody(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	view, err := s.records.Save(r.Context(), records.SaveRequest{
		OwnerID:        common.OwnerIDFromContext(r.Context()),
		TemplateName:   body.Template,
		SourceFilename: body.FileName,
		Fields:         body.Fields,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (s *Service) handleListRecords(w http.ResponseWriter, r *http.Request) {
	views, err := s.records.List(r.Context(), common.OwnerIDFromContext(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if views == nil {
		views = []*entity.FormView{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": views})
}

func (s *Service) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	view, err := s.records.Get(r.Context(), common.OwnerIDFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type updateJSON struct {
	Fields map[string]any `json:"fields"`
}

func (s *Service) handleUpdateRecord(w http.ResponseWriter, r *http.Request) {
	var body updateJSON
	if err := decodeBody(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	view, err := s.records.Update(r.Context(), common.OwnerIDFromContext(r.Context()), chi.URLParam(r, "id"), body.Fields)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Service) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	if err := s.records.Delete(r.Context(), common.OwnerIDFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handleExportRecord(w http.ResponseWriter, r *http.Request) {
	id, format := chi.URLParam(r, "id"), chi.URLParam(r, "format")
	b, ct, err := s.ExportRecord(r.Context(), common.OwnerIDFromContext(r.Context()), id, format)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeAttachment(w, ct, exportFileName(id, strings.ToLower(format)), b)
}

func (s *Service) handleExportAll(w http.ResponseWriter, r *http.Request) {
	b, err := s.ExportRecords(r.Context(), common.OwnerIDFromContext(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeAttachment(w, contentTypeXLSX, "forms.xlsx", b)
}

type errorJSON struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func (s *Service) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := common.ToHTTPStatus(err)
	rid := common.RequestIDFromContext(r.Context())
	msg := err.Error()
	var ae *common.AppError
	if errors.As(err, &ae) {
		msg = ae.Message
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("http.request.failed", "req_id", rid, "path", r.URL.Path, "status", status, "error", err)
		if status == http.StatusInternalServerError {
			msg = "internal error"
		}
	} else {
		s.logger.Warn("http.request.rejected", "req_id", rid, "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, map[string]errorJSON{"error": {Code: common.CodeOf(err), Message: msg, RequestID: rid}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Warn("http.response.encode_failed", "error", err)
	}
}

func writeAttachment(w http.ResponseWriter, contentType, name string, b []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(b)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, bodyOverhead)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return bodyError("decode request body", err)
	}
	return nil
}

func bodyError(what string, err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return common.InvalidInput("request body exceeds %d bytes", tooLarge.Limit)
	}
	return common.InvalidInput("%s: %v", what, err)
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(strings.ToLower(r.Header.Get("Content-Type")), "multipart/form-data")
}
