// Package archive packages a validated working directory into a zip file.
package archive

import (
	"archive/zip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/vk/reportbundle/internal/ctxlog"
	"github.com/vk/reportbundle/internal/fsutil"
	"github.com/vk/reportbundle/internal/workspace"
)

// Result describes a written archive.
type Result struct {
	Path    string
	Entries []string
	Size    int64
	SHA256  string
}

// Build writes the archive for l to l.OutputPath(), replacing any previous
// archive. Entries are the results CSV, the config and the README followed
// by every regular file under the grids directory in lexical order, each
// named relative to the working root with forward slashes.
func Build(ctx context.Context, l workspace.Layout) (*Result, error) {
	logger := ctxlog.FromContext(ctx)

	files := []string{l.ResultsPath(), l.ConfigPath(), l.ReadmePath()}
	grids, err := fsutil.FindRegularFiles(l.GridsPath())
	if err != nil {
		return nil, fmt.Errorf("walk grids: %w", err)
	}
	files = append(files, grids...)

	entries := make([]string, 0, len(files))
	for _, f := range files {
		name, err := fsutil.RelSlash(l.Root, f)
		if err != nil {
			return nil, err
		}
		entries = append(entries, name)
	}

	out := l.OutputPath()
	err = fsutil.WriteFileAtomic(out, 0o644, func(w io.Writer) error {
		zw := zip.NewWriter(w)
		for i, f := range files {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := addFile(zw, f, entries[i]); err != nil {
				return err
			}
		}
		return zw.Close()
	})
	if err != nil {
		return nil, fmt.Errorf("write archive %s: %w", out, err)
	}

	size, sum, err := digest(out)
	if err != nil {
		return nil, err
	}
	logger.Debug("Archive written.", "path", out, "entries", len(entries), "bytes", size)
	return &Result{Path: out, Entries: entries, Size: size, SHA256: sum}, nil
}

func addFile(zw *zip.Writer, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = name
	hdr.Method = zip.Deflate

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("create entry %s: %w", name, err)
	}
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("copy %s: %w", filepath.Base(path), err)
	}
	return nil
}

func digest(path string) (int64, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, "", err
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return 0, "", fmt.Errorf("hash archive: %w", err)
	}
	return n, hex.EncodeToString(h.Sum(nil)), nil
}
