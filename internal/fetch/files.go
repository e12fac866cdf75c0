/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/cw3e/nwpcycle/internal/models"
)

// gribMagic opens every GRIB edition 1 and 2 message.
var gribMagic = []byte("GRIB")

// ErrNotGRIB is returned when a downloaded file lacks the GRIB header.
var ErrNotGRIB = errors.New("not a GRIB file")

// IsGRIB reports whether the file at path starts with the GRIB magic bytes.
func IsGRIB(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	head := make([]byte, len(gribMagic))
	if _, err := io.ReadFull(f, head); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return false, nil
		}
		return false, err
	}
	return bytes.Equal(head, gribMagic), nil
}

// Exists reports whether path is a regular, non-empty file.
func Exists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.Mode().IsRegular() && st.Size() > 0
}

// WriteFile streams r into path through a temporary sibling and renames it into
// place, so a partial download never occupies the target name.
func WriteFile(ctx context.Context, path string, r io.Reader) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".part-*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, &ctxReader{ctx: ctx, r: r})
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, fmt.Errorf("write %s: %w", path, err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return n, fmt.Errorf("rename into place: %w", err)
	}
	return n, nil
}

// Ledger is the subset of the download ledger used by the downloaders.
type Ledger interface {
	Done(ctx context.Context, source, key string) (bool, error)
	Record(ctx context.Context, rec models.DownloadRecord) error
}

// AlreadyFetched reports whether a job can be skipped: clobber is off and the
// target exists on disk or is recorded as complete in the ledger. Files moved
// away after a completed download stay skipped until the ledger entry is
// forgotten.
func AlreadyFetched(ctx context.Context, l Ledger, source, key, path string, clobber bool) (bool, error) {
	if clobber {
		return false, nil
	}
	if Exists(path) {
		return true, nil
	}
	if l == nil {
		return false, nil
	}
	return l.Done(ctx, source, key)
}

// Record writes the outcome of a job to the ledger, if one is configured.
func Record(ctx context.Context, l Ledger, source, key string, init time.Time, lead int, res Result, jobErr error) error {
	if l == nil {
		return nil
	}
	rec := models.DownloadRecord{
		Source:    source,
		ObjectKey: key,
		Path:      res.Path,
		InitTime:  init,
		Lead:      lead,
		Bytes:     res.Bytes,
		Status:    models.DownloadComplete,
	}
	if jobErr != nil {
		rec.Status = models.DownloadFailed
		rec.Error = jobErr.Error()
	}
	return l.Record(ctx, rec)
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
