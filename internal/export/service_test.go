package export

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/form-digitizer/internal/entity"
)

func sampleView(template, file string, fields entity.FormFields) *entity.FormView {
	return &entity.FormView{
		ID:             uuid.New(),
		OwnerID:        "alice",
		TemplateName:   template,
		SourceFilename: file,
		Fields:         fields,
		CreatedAt:      time.Date(2024, 3, 9, 12, 30, 0, 0, time.UTC),
	}
}

func admissionFields(name, school string) entity.FormFields {
	return entity.FormFields{Sections: []entity.SectionValues{
		{Name: "Personal Details", Fields: []entity.FieldValue{{Name: "Full Name", Value: name}, {Name: "Gender", Value: ""}}},
		{Name: "Educational Details", Fields: []entity.FieldValue{{Name: "School", Value: school}}},
	}}
}

func newService() *Service {
	return NewService(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRecordXLSX(t *testing.T) {
	rec := sampleView("Admission", "scan.png", admissionFields("Jane Doe", "Lincoln High"))

	b, err := newService().RecordXLSX(rec)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(b))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Form"}, f.GetSheetList())
	rows, err := f.GetRows("Form")
	require.NoError(t, err)
	assert.Equal(t, []string{"Form ID", rec.ID.String()}, rows[0])
	assert.Equal(t, []string{"Template", "Admission"}, rows[1])
	assert.Equal(t, []string{"Section", "Field", "Value"}, rows[5])
	assert.Equal(t, []string{"Personal Details", "Full Name", "Jane Doe"}, rows[6])
	assert.Equal(t, []string{"Personal Details", "Gender"}, rows[7][:2])
	assert.Equal(t, []string{"Educational Details", "School", "Lincoln High"}, rows[8])
}

func TestRecordsXLSX_SheetPerTemplate(t *testing.T) {
	bio := entity.FormFields{Sections: []entity.SectionValues{
		{Name: "Personal Information", Fields: []entity.FieldValue{{Name: "Full Name", Value: "Asif"}}},
	}}
	recs := []*entity.FormView{
		sampleView("Admission", "a.png", admissionFields("Jane", "Lincoln")),
		sampleView("Biodata", "b.png", bio),
		sampleView("Admission", "c.png", admissionFields("John", "")),
	}

	b, err := newService().RecordsXLSX(recs)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(b))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Admission", "Biodata"}, f.GetSheetList())
	rows, err := f.GetRows("Admission")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Form ID", "File Name", "Created At",
		"Personal Details / Full Name", "Personal Details / Gender", "Educational Details / School"}, rows[0])
	assert.Equal(t, "a.png", rows[1][1])
	assert.Equal(t, "Jane", rows[1][3])
	assert.Equal(t, "Lincoln", rows[1][5])
	assert.Equal(t, "c.png", rows[2][1])
	assert.Equal(t, "John", rows[2][3])
}

func TestRecordsXLSX_Empty(t *testing.T) {
	b, err := newService().RecordsXLSX(nil)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(b))
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"Forms"}, f.GetSheetList())
}

func TestRecordJSON_ShapeAndOrder(t *testing.T) {
	rec := sampleView("Admission", "scan.png", admissionFields("Jane Doe", "Lincoln High"))

	b, err := RecordJSON(rec)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(b, &doc))
	assert.Equal(t, rec.ID.String(), doc["formId"])
	assert.Equal(t, "Admission", doc["templateType"])
	assert.Equal(t, "scan.png", doc["fileName"])
	assert.Equal(t, "2024-03-09T12:30:00Z", doc["createdAt"])

	text := string(b)
	assert.Less(t, strings.Index(text, "Personal Details"), strings.Index(text, "Educational Details"))
	assert.Less(t, strings.Index(text, "Full Name"), strings.Index(text, "Gender"))
}

func TestUniqueSheetName(t *testing.T) {
	used := map[string]bool{}
	assert.Equal(t, "Bank Account", uniqueSheetName("Bank Account", used))
	assert.Equal(t, "bank account (2)", uniqueSheetName("bank account", used))
	assert.Equal(t, "a_b_c", uniqueSheetName("a/b?c", used))
	long := uniqueSheetName(strings.Repeat("x", 40), used)
	assert.Len(t, long, maxSheetNameLen)
}
