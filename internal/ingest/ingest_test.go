package ingest

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/form-digitizer/internal/common"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestScan(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.png"), "one")
	writeFile(t, filepath.Join(root, "b.JPG"), "two")
	writeFile(t, filepath.Join(root, "notes.txt"), "skip")
	writeFile(t, filepath.Join(root, "nested", "c.pdf"), "one")
	writeFile(t, filepath.Join(root, ".hidden", "d.webp"), "three")
	writeFile(t, filepath.Join(root, ".e.png"), "four")

	results, stats, err := Scan(context.Background(), root, true)
	require.NoError(t, err)

	var paths []string
	for _, r := range results {
		rel, _ := filepath.Rel(root, r.Path)
		paths = append(paths, rel)
	}
	assert.Equal(t, []string{"a.png", "b.JPG", filepath.Join("nested", "c.pdf")}, paths)
	assert.Equal(t, "jpg", results[1].Ext)
	assert.Equal(t, int64(3), results[0].Size)
	assert.False(t, results[0].Deduplicated)
	assert.True(t, results[2].Deduplicated, "same content as a.png")
	assert.Equal(t, results[0].HashHex, results[2].HashHex)
	assert.Equal(t, uint32(4), stats.Scanned)
	assert.Equal(t, uint32(3), stats.Matched)
	assert.Equal(t, uint32(1), stats.Deduplicated)

	all, _, err := Scan(context.Background(), root, false)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestScan_BadRoot(t *testing.T) {
	_, _, err := Scan(context.Background(), "", false)
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	_, _, err = Scan(context.Background(), filepath.Join(t.TempDir(), "missing"), false)
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	file := filepath.Join(t.TempDir(), "x.png")
	writeFile(t, file, "x")
	_, _, err = Scan(context.Background(), file, false)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestReadScan(t *testing.T) {
	dir := t.TempDir()
	img := filepath.Join(dir, "form.png")
	writeFile(t, img, "0123456789")

	b, err := ReadScan(img, 0)
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(b))

	_, err = ReadScan(img, 5)
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	_, err = ReadScan(filepath.Join(dir, "missing.png"), 0)
	assert.ErrorIs(t, err, common.ErrNotFound)

	txt := filepath.Join(dir, "form.txt")
	writeFile(t, txt, "x")
	_, err = ReadScan(txt, 0)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestWatch_InitialScanAndNewFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "existing.png"), "x")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, _, err := Watch(ctx, WatchConfig{
		Roots:       []string{root},
		InitialScan: true,
		Debounce:    20 * time.Millisecond,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)

	next := func() string {
		select {
		case p := <-events:
			return p
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for watch event")
			return ""
		}
	}
	assert.Equal(t, filepath.Join(root, "existing.png"), next())

	writeFile(t, filepath.Join(root, "notes.txt"), "ignored")
	writeFile(t, filepath.Join(root, "new.jpg"), "y")
	assert.Equal(t, filepath.Join(root, "new.jpg"), next())

	cancel()
	for range events {
	}
}

func TestWatch_NoRoots(t *testing.T) {
	_, _, err := Watch(context.Background(), WatchConfig{})
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}
