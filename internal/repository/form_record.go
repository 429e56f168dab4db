package repository

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/form-digitizer/internal/common"
	"github.com/joseph-ayodele/form-digitizer/internal/entity"
)

// FormRecordRepository persists form records. Payloads are stored verbatim;
// shaping them to a template is the caller's concern.
type FormRecordRepository interface {
	// Create assigns ID and timestamps when they are zero.
	Create(ctx context.Context, rec *entity.FormRecord) (*entity.FormRecord, error)
	GetByID(ctx context.Context, id uuid.UUID) (*entity.FormRecord, error)
	// ListByOwner returns the owner's records, newest first.
	ListByOwner(ctx context.Context, ownerID string) ([]*entity.FormRecord, error)
	UpdateData(ctx context.Context, id uuid.UUID, data json.RawMessage) (*entity.FormRecord, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

func recordNotFound(id uuid.UUID) error {
	return common.NotFound("form record %s not found", id)
}

func dbError(op string, err error) error {
	return common.NewAppError(common.CodeDatabase, op+" failed", fmt.Errorf("%w: %v", common.ErrDatabase, err))
}

//go:embed migrations
var migrationFS embed.FS

type migration struct {
	version int
	name    string
	sql     string
}

// loadMigrations returns the dialect's migrations ordered by their numeric prefix.
func loadMigrations(dialect string) ([]migration, error) {
	dir := path.Join("migrations", dialect)
	entries, err := fs.ReadDir(migrationFS, dir)
	if err != nil {
		return nil, err
	}
	var out []migration
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		prefix, _, ok := strings.Cut(e.Name(), "_")
		if !ok {
			return nil, fmt.Errorf("migration %s has no version prefix", e.Name())
		}
		v, err := strconv.Atoi(prefix)
		if err != nil {
			return nil, fmt.Errorf("migration %s: bad version: %w", e.Name(), err)
		}
		b, err := migrationFS.ReadFile(path.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		out = append(out, migration{version: v, name: e.Name(), sql: string(b)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}
