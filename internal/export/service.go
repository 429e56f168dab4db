package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/form-digitizer/internal/entity"
)

const (
	formSheet       = "Form"
	emptySheet      = "Forms"
	maxSheetNameLen = 31
)

// Service renders normalized records as XLSX workbooks and JSON documents.
type Service struct {
	logger *slog.Logger
}

func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger}
}

// RecordXLSX returns a single-sheet workbook: record metadata on top, then
// one Section / Field / Value row per field in template order.
func (s *Service) RecordXLSX(rec *entity.FormView) ([]byte, error) {
	start := time.Now()
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", formSheet); err != nil {
		return nil, err
	}

	meta := [][]any{
		{"Form ID", rec.ID.String()},
		{"Template", rec.TemplateName},
		{"File Name", rec.SourceFilename},
		{"Created At", rec.CreatedAt.UTC().Format(time.RFC3339)},
	}
	row := 1
	for _, m := range meta {
		if err := setRow(f, formSheet, row, m); err != nil {
			return nil, err
		}
		row++
	}
	row++ // blank separator

	if err := setRow(f, formSheet, row, []any{"Section", "Field", "Value"}); err != nil {
		return nil, err
	}
	if err := boldRow(f, formSheet, row, 3); err != nil {
		return nil, err
	}
	row++
	for _, sec := range rec.Fields.Sections {
		for _, fv := range sec.Fields {
			if err := setRow(f, formSheet, row, []any{sec.Name, fv.Name, fv.Value}); err != nil {
				return nil, err
			}
			row++
		}
	}

	_ = f.SetColWidth(formSheet, "A", "A", 24)
	_ = f.SetColWidth(formSheet, "B", "B", 32)
	_ = f.SetColWidth(formSheet, "C", "C", 48)

	out, err := write(f)
	if err != nil {
		return nil, err
	}
	s.logger.Info("export.xlsx.ok",
		"record_id", rec.ID.String(),
		"rows", row-1,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

// RecordsXLSX returns one sheet per template with one row per record and one
// column per "section / field", in template order. Records keep their input
// order within a sheet.
func (s *Service) RecordsXLSX(recs []*entity.FormView) ([]byte, error) {
	start := time.Now()
	f := excelize.NewFile()
	defer f.Close()

	var order []string
	groups := make(map[string][]*entity.FormView)
	for _, r := range recs {
		if _, ok := groups[r.TemplateName]; !ok {
			order = append(order, r.TemplateName)
		}
		groups[r.TemplateName] = append(groups[r.TemplateName], r)
	}

	if len(order) == 0 {
		if err := f.SetSheetName("Sheet1", emptySheet); err != nil {
			return nil, err
		}
		if err := setRow(f, emptySheet, 1, []any{"Form ID", "File Name", "Created At"}); err != nil {
			return nil, err
		}
		return write(f)
	}

	used := make(map[string]bool)
	for i, tplName := range order {
		sheet := uniqueSheetName(tplName, used)
		if i == 0 {
			if err := f.SetSheetName("Sheet1", sheet); err != nil {
				return nil, err
			}
		} else if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}

		group := groups[tplName]
		header := []any{"Form ID", "File Name", "Created At"}
		for _, sec := range group[0].Fields.Sections {
			for _, fv := range sec.Fields {
				header = append(header, sec.Name+" / "+fv.Name)
			}
		}
		if err := setRow(f, sheet, 1, header); err != nil {
			return nil, err
		}
		if err := boldRow(f, sheet, 1, len(header)); err != nil {
			return nil, err
		}

		for j, r := range group {
			vals := []any{r.ID.String(), r.SourceFilename, r.CreatedAt.UTC().Format(time.RFC3339)}
			for _, sec := range group[0].Fields.Sections {
				for _, fv := range sec.Fields {
					v, _ := r.Fields.Value(sec.Name, fv.Name)
					vals = append(vals, v)
				}
			}
			if err := setRow(f, sheet, j+2, vals); err != nil {
				return nil, err
			}
		}
		_ = f.SetColWidth(sheet, "A", "A", 38)
		_ = f.SetColWidth(sheet, "B", "C", 22)
	}
	f.SetActiveSheet(0)

	out, err := write(f)
	if err != nil {
		return nil, err
	}
	s.logger.Info("export.xlsx.ok",
		"records", len(recs),
		"sheets", len(order),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

// jsonDocument is the portable JSON export shape.
type jsonDocument struct {
	FormID        string            `json:"formId"`
	TemplateType  string            `json:"templateType"`
	FileName      string            `json:"fileName"`
	CreatedAt     string            `json:"createdAt"`
	ExtractedData entity.FormFields `json:"extractedData"`
}

// RecordJSON renders rec as an indented JSON document whose extractedData
// keeps template order.
func RecordJSON(rec *entity.FormView) ([]byte, error) {
	doc := jsonDocument{
		FormID:        rec.ID.String(),
		TemplateType:  rec.TemplateName,
		FileName:      rec.SourceFilename,
		CreatedAt:     rec.CreatedAt.UTC().Format(time.RFC3339),
		ExtractedData: rec.Fields,
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("json export: %w", err)
	}
	return buf.Bytes(), nil
}

func setRow(f *excelize.File, sheet string, row int, vals []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &vals)
}

func boldRow(f *excelize.File, sheet string, row, cols int) error {
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	first, _ := excelize.CoordinatesToCellName(1, row)
	last, _ := excelize.CoordinatesToCellName(cols, row)
	return f.SetCellStyle(sheet, first, last, style)
}

func write(f *excelize.File) ([]byte, error) {
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

// uniqueSheetName strips characters Excel rejects and truncates to its length limit.
func uniqueSheetName(name string, used map[string]bool) string {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			return '_'
		}
		return r
	}, strings.TrimSpace(name))
	if clean == "" {
		clean = emptySheet
	}
	if r := []rune(clean); len(r) > maxSheetNameLen {
		clean = string(r[:maxSheetNameLen])
	}
	candidate := clean
	for i := 2; used[strings.ToLower(candidate)]; i++ {
		suffix := fmt.Sprintf(" (%d)", i)
		r := []rune(clean)
		if len(r)+len(suffix) > maxSheetNameLen {
			r = r[:maxSheetNameLen-len(suffix)]
		}
		candidate = string(r) + suffix
	}
	used[strings.ToLower(candidate)] = true
	return candidate
}
