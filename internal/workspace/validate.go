package workspace

import (
	"context"
	"fmt"
	"os"

	"github.com/vk/reportbundle/internal/ctxlog"
	"github.com/vk/reportbundle/internal/fsutil"
	"github.com/vk/reportbundle/internal/results"
)

// ValidateOptions tunes which artifacts are required.
type ValidateOptions struct {
	// SkipConfig drops the config file from the required set, for callers
	// that are about to write it themselves.
	SkipConfig bool
}

// Validate checks, in order: the required files exist, the grids directory
// exists, the CSV parses and carries the required columns, and every row's
// image exists. It stops at the first violation and returns the parsed table
// on success. It never writes.
func Validate(ctx context.Context, l Layout, opts ValidateOptions) (*results.Table, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Validating workspace.", "root", l.Root)

	required := []struct{ name, path string }{
		{l.Results, l.ResultsPath()},
		{l.Config, l.ConfigPath()},
		{l.Readme, l.ReadmePath()},
	}
	for _, f := range required {
		if opts.SkipConfig && f.path == l.ConfigPath() {
			continue
		}
		if err := requireFile(f.name, f.path); err != nil {
			return nil, err
		}
	}

	info, err := os.Stat(l.GridsPath())
	if err != nil || !info.IsDir() {
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("stat %s: %w", l.GridsPath(), err)
		}
		return nil, &MissingFileError{Name: l.Grids, Path: l.GridsPath(), Dir: true}
	}

	table, err := results.ReadFile(l.ResultsPath())
	if err != nil {
		return nil, err
	}
	if missing := table.MissingColumns(results.RequiredColumns...); len(missing) > 0 {
		return nil, &MissingColumnsError{Path: l.ResultsPath(), Columns: missing}
	}

	for _, row := range table.Rows {
		if err := l.CheckImage(row[results.ColID], row[results.ColImagePath]); err != nil {
			return nil, err
		}
	}

	logger.Debug("Workspace validated.", "rows", len(table.Rows))
	return table, nil
}

// CheckImage returns a *MissingImageError if the image named by a row does
// not exist.
func (l Layout) CheckImage(rowID, imagePath string) error {
	if imagePath == "" {
		return &MissingImageError{RowID: rowID, Path: imagePath}
	}
	ok, err := fsutil.Exists(l.Resolve(imagePath))
	if err != nil {
		return fmt.Errorf("stat image %s: %w", imagePath, err)
	}
	if !ok {
		return &MissingImageError{RowID: rowID, Path: imagePath}
	}
	return nil
}

func requireFile(name, path string) error {
	ok, err := fsutil.Exists(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if !ok {
		return &MissingFileError{Name: name, Path: path}
	}
	return nil
}
