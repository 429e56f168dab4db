package records

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/form-digitizer/internal/common"
	"github.com/joseph-ayodele/form-digitizer/internal/entity"
	"github.com/joseph-ayodele/form-digitizer/internal/repository"
	"github.com/joseph-ayodele/form-digitizer/internal/templates"
)

type fixture struct {
	svc   *Service
	store repository.Store
	reg   *templates.Registry
}

func newFixture(t *testing.T, logger *slog.Logger) fixture {
	t.Helper()
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	store, err := repository.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "records.db"), logger)
	require.NoError(t, err)
	t.Cleanup(store.Close)
	reg, err := templates.Builtin()
	require.NoError(t, err)
	return fixture{svc: NewService(store, reg, logger), store: store, reg: reg}
}

func admission(fullName string) map[string]any {
	return map[string]any{"Personal Details": map[string]any{"Full Name": fullName}}
}

func TestSave_NormalizesToTemplate(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	fv, err := f.svc.Save(ctx, SaveRequest{
		OwnerID:        "alice",
		TemplateName:   "Admission",
		SourceFilename: "scan.png",
		Fields: map[string]any{
			"Personal Details": map[string]any{"Full Name": "Jane Doe", "Nickname": "JD"},
			"Hobbies":          map[string]any{"Chess": "yes"},
		},
	})
	require.NoError(t, err)

	tpl, _ := f.reg.Get("Admission")
	assert.Equal(t, "Admission", fv.TemplateName)
	assert.Equal(t, 1, fv.Fields.Filled())
	assert.Len(t, fv.Fields.Sections, len(tpl.Sections))
	_, ok := fv.Fields.Value("Personal Details", "Nickname")
	assert.False(t, ok)

	stored, err := f.store.GetByID(ctx, fv.ID)
	require.NoError(t, err)
	var raw map[string]map[string]string
	require.NoError(t, json.Unmarshal(stored.Data, &raw))
	assert.Equal(t, "Jane Doe", raw["Personal Details"]["Full Name"])
	assert.NotContains(t, raw, "Hobbies")
}

func TestSave_Validation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	tests := []struct {
		name string
		req  SaveRequest
	}{
		{name: "missing owner", req: SaveRequest{TemplateName: "Admission"}},
		{name: "missing template", req: SaveRequest{OwnerID: "alice"}},
		{name: "unknown template", req: SaveRequest{OwnerID: "alice", TemplateName: "NotARealTemplate"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Save(ctx, tt.req)
			assert.ErrorIs(t, err, common.ErrInvalidInput)
		})
	}
}

func TestSave_TwiceCreatesTwoRecords(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	req := SaveRequest{OwnerID: "alice", TemplateName: "Admission", Fields: admission("Jane Doe")}
	a, err := f.svc.Save(ctx, req)
	require.NoError(t, err)
	b, err := f.svc.Save(ctx, req)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)

	list, err := f.svc.List(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestGet_ForeignOwnerIsNotFound(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	fv, err := f.svc.Save(ctx, SaveRequest{OwnerID: "alice", TemplateName: "Admission", Fields: admission("Jane Doe")})
	require.NoError(t, err)

	_, err = f.svc.Get(ctx, "mallory", fv.ID.String())
	assert.ErrorIs(t, err, common.ErrNotFound)
	_, err = f.svc.Update(ctx, "mallory", fv.ID.String(), admission("Evil"))
	assert.ErrorIs(t, err, common.ErrNotFound)
	assert.ErrorIs(t, f.svc.Delete(ctx, "mallory", fv.ID.String()), common.ErrNotFound)

	got, err := f.svc.Get(ctx, "alice", fv.ID.String())
	require.NoError(t, err)
	v, _ := got.Fields.Value("Personal Details", "Full Name")
	assert.Equal(t, "Jane Doe", v)
}

func TestGet_BadID(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.Get(context.Background(), "alice", "not-a-uuid")
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	_, err = f.svc.Get(context.Background(), "alice", uuid.NewString())
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestUpdate_OverwritesInPlace(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	fv, err := f.svc.Save(ctx, SaveRequest{OwnerID: "alice", TemplateName: "Admission", SourceFilename: "a.png", Fields: admission("Jane Doe")})
	require.NoError(t, err)

	updated, err := f.svc.Update(ctx, "alice", fv.ID.String(), map[string]any{
		"Personal Details":    map[string]any{"Full Name": "Jane Q. Doe"},
		"Educational Details": map[string]any{"School": "Lincoln High"},
	})
	require.NoError(t, err)
	assert.Equal(t, fv.ID, updated.ID)
	assert.Equal(t, "a.png", updated.SourceFilename)
	v, _ := updated.Fields.Value("Personal Details", "Full Name")
	assert.Equal(t, "Jane Q. Doe", v)
	v, _ = updated.Fields.Value("Educational Details", "School")
	assert.Equal(t, "Lincoln High", v)

	list, err := f.svc.List(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestDelete(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	fv, err := f.svc.Save(ctx, SaveRequest{OwnerID: "alice", TemplateName: "Biodata"})
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, "alice", fv.ID.String()))
	_, err = f.svc.Get(ctx, "alice", fv.ID.String())
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestGet_StoredDriftIsNormalizedAndLogged(t *testing.T) {
	var buf bytes.Buffer
	f := newFixture(t, slog.New(slog.NewTextHandler(&buf, nil)))
	ctx := context.Background()

	rec, err := f.store.Create(ctx, &entity.FormRecord{
		OwnerID:      "alice",
		TemplateName: "Admission",
		Data:         json.RawMessage(`{"Personal Details":{"Full Name":"Jane","Retired Field":"x"}}`),
	})
	require.NoError(t, err)

	got, err := f.svc.Get(ctx, "alice", rec.ID.String())
	require.NoError(t, err)

	tpl, _ := f.reg.Get("Admission")
	assert.Len(t, got.Fields.Sections, len(tpl.Sections))
	v, _ := got.Fields.Value("Personal Details", "Full Name")
	assert.Equal(t, "Jane", v)
	assert.Contains(t, buf.String(), "normalize.drift")
}
