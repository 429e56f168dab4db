// Package ingest discovers form scans on disk.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/form-digitizer/constants"
	"github.com/joseph-ayodele/form-digitizer/internal/common"
)

// FileResult is the per-file scan outcome.
type FileResult struct {
	Path string
	Ext  string
	Size int64
	// HashHex is the SHA-256 of the content. Files whose content was already
	// seen earlier in the same scan are marked Deduplicated.
	HashHex      string
	Deduplicated bool
	Err          string
}

// DirStats summarizes a directory scan.
type DirStats struct {
	Scanned      uint32
	Matched      uint32
	Deduplicated uint32
	Failed       uint32
}

// Scan walks root and returns every file with an allowed scan extension
// (pdf, jpg, jpeg, png, webp) in lexical order. Unreadable entries are
// reported as failed results and do not stop the walk.
func Scan(ctx context.Context, root string, skipHidden bool) ([]FileResult, DirStats, error) {
	var (
		results []FileResult
		stats   DirStats
	)
	if strings.TrimSpace(root) == "" {
		return nil, stats, common.InvalidInput("root path is required")
	}
	if info, err := os.Stat(root); err != nil {
		return nil, stats, common.NewAppError(common.CodeInvalidInput, "root path is not readable", fmt.Errorf("%w: %v", common.ErrInvalidInput, err))
	} else if !info.IsDir() {
		return nil, stats, common.InvalidInput("root path %q is not a directory", root)
	}

	seen := make(map[string]struct{})
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			stats.Scanned++
			results = append(results, FileResult{Path: path, Err: walkErr.Error()})
			stats.Failed++
			return nil
		}
		if skipHidden && path != root && IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		stats.Scanned++
		if !AllowedExt(filepath.Ext(path)) {
			return nil
		}
		stats.Matched++

		res := FileResult{Path: path, Ext: constants.NormalizeExt(filepath.Ext(path))}
		size, sum, err := hashFile(path)
		if err != nil {
			res.Err = err.Error()
			stats.Failed++
			results = append(results, res)
			return nil
		}
		res.Size, res.HashHex = size, sum
		if _, dup := seen[sum]; dup {
			res.Deduplicated = true
			stats.Deduplicated++
		}
		seen[sum] = struct{}{}
		results = append(results, res)
		return nil
	})
	if err != nil {
		return results, stats, fmt.Errorf("walk: %w", err)
	}
	return results, stats, nil
}

// ReadScan loads one scan, refusing files larger than maxBytes (when positive)
// or with an extension outside the allowed set.
func ReadScan(path string, maxBytes int64) ([]byte, error) {
	if !AllowedExt(filepath.Ext(path)) {
		return nil, common.InvalidInput("unsupported file extension %q", filepath.Ext(path))
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, common.NotFound("file %s not found", path)
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := io.Reader(f)
	if maxBytes > 0 {
		r = io.LimitReader(f, maxBytes+1)
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if maxBytes > 0 && int64(len(b)) > maxBytes {
		return nil, common.InvalidInput("file %s exceeds %d bytes", filepath.Base(path), maxBytes)
	}
	return b, nil
}

// AllowedExt checks if a file extension is in the allowed set.
func AllowedExt(ext string) bool {
	_, ok := constants.AllowedExtensions[constants.NormalizeExt(ext)]
	return ok
}

// IsHidden checks if a file or directory is hidden (starts with '.').
func IsHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}

func hashFile(path string) (int64, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, "", err
	}
	defer f.Close()
	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return 0, "", err
	}
	return n, hex.EncodeToString(h.Sum(nil)), nil
}
