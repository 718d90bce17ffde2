// Package csvexport writes batches of flat rows as CSV artifacts.
package csvexport

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/okian/solarbatch/internal/domain/flatten"
	"github.com/okian/solarbatch/internal/domain/jsonvalue"
	"github.com/okian/solarbatch/pkg/logger"
	"github.com/okian/solarbatch/pkg/metrics"
)

const (
	// Extension is appended to every artifact name.
	Extension = ".csv"

	// DefaultLabel prefixes generated file names.
	DefaultLabel = "building-insights"

	timestampLayout = "2006-01-02T15:04:05.000Z"
	dirPerm         = 0o755
	filePerm        = 0o644
	maxNameAttempts = 5
)

var timestampReplacer = strings.NewReplacer(":", "-", ".", "-")

// Artifact describes a written CSV file.
type Artifact struct {
	Path   string   `json:"path"`
	Header []string `json:"header"`
	Rows   int      `json:"rows"`
}

// Exporter writes rows under a fixed output directory.
type Exporter struct {
	dir    string
	label  string
	now    func() time.Time
	logger logger.Logger
}

// Option applies a configuration option to the Exporter.
type Option func(*Exporter)

// WithLabel sets the prefix of generated file names.
func WithLabel(label string) Option {
	return func(e *Exporter) {
		if label != "" {
			e.label = label
		}
	}
}

// WithClock replaces time.Now for generated file names.
func WithClock(now func() time.Time) Option {
	return func(e *Exporter) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLogger sets a custom logger for the exporter.
func WithLogger(l logger.Logger) Option {
	return func(e *Exporter) {
		if l != nil {
			e.logger = l
		}
	}
}

// New returns an Exporter writing into dir.
func New(dir string, opts ...Option) *Exporter {
	e := &Exporter{
		dir:   dir,
		label: DefaultLabel,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logger.Named("csvexport")
	}
	return e
}

// Dir returns the output directory.
func (e *Exporter) Dir() string { return e.dir }

// Header returns the union of all row keys in first-seen order: rows in
// order, and each row's keys in its own order.
func Header(rows []*flatten.Row) []string {
	seen := make(map[string]struct{})
	var header []string
	for _, r := range rows {
		for _, k := range r.Keys() {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			header = append(header, k)
		}
	}
	return header
}

// Cell renders a scalar for a CSV cell. Null renders empty.
func Cell(v jsonvalue.Value) string {
	switch v.Kind() {
	case jsonvalue.KindNull:
		return ""
	case jsonvalue.KindBool:
		if v.AsBool() {
			return "true"
		}
		return "false"
	case jsonvalue.KindNumber, jsonvalue.KindString:
		return v.Text()
	case jsonvalue.KindArray, jsonvalue.KindObject:
		return v.Compact()
	}
	return ""
}

// Write renders header and one line per row. Keys absent from a row are empty cells.
func Write(w io.Writer, header []string, rows []*flatten.Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	record := make([]string, len(header))
	for _, r := range rows {
		for i, k := range header {
			v, ok := r.Get(k)
			if !ok {
				record[i] = ""
				continue
			}
			record[i] = Cell(v)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// FileName returns name plus the extension, or a timestamped default when
// name is empty. Directory components of name are dropped.
func (e *Exporter) FileName(name string) string {
	if name = strings.TrimSpace(name); name != "" {
		return filepath.Base(name) + Extension
	}
	ts := timestampReplacer.Replace(e.now().UTC().Format(timestampLayout))
	return e.label + "-" + ts + Extension
}

// Export writes rows to a new CSV file. An empty batch writes nothing and
// returns (nil, nil). Any filesystem failure is a *StorageError.
func (e *Exporter) Export(ctx context.Context, rows []*flatten.Row, name string) (*Artifact, error) {
	if len(rows) == 0 {
		e.logger.Warn(ctx, "no data to save to CSV")
		metrics.RecordExportSkipped()
		return nil, nil
	}
	start := time.Now()

	header := Header(rows)

	if err := os.MkdirAll(e.dir, dirPerm); err != nil {
		return nil, e.fail(ctx, &StorageError{Op: OpMkdir, Path: e.dir, Err: err})
	}

	path, reserved, err := e.reserve(name)
	if err != nil {
		return nil, e.fail(ctx, err)
	}

	if err := e.writeAtomic(path, header, rows); err != nil {
		if reserved {
			if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
				err = multierror.Append(err, rmErr)
			}
		}
		return nil, e.fail(ctx, err)
	}

	metrics.RecordExport(len(rows), len(header), time.Since(start))
	e.logger.Info(ctx, "data saved to CSV",
		logger.String("path", path),
		logger.Int("rows", len(rows)),
		logger.Int("columns", len(header)),
	)
	return &Artifact{Path: path, Header: header, Rows: len(rows)}, nil
}

// reserve claims the target file name. Generated names must not already
// exist, so two batches started in the same millisecond get distinct files;
// caller-supplied names are overwritten.
func (e *Exporter) reserve(name string) (string, bool, error) {
	path := filepath.Join(e.dir, e.FileName(name))
	if strings.TrimSpace(name) != "" {
		return path, false, nil
	}

	base := strings.TrimSuffix(path, Extension)
	for attempt := 0; attempt < maxNameAttempts; attempt++ {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePerm)
		if err == nil {
			if err := f.Close(); err != nil {
				return "", false, &StorageError{Op: OpCreate, Path: path, Err: err}
			}
			return path, true, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", false, &StorageError{Op: OpCreate, Path: path, Err: err}
		}
		path = base + "-" + uuid.NewString()[:8] + Extension
	}
	return "", false, &StorageError{Op: OpCreate, Path: path, Err: fs.ErrExist}
}

// writeAtomic writes to a temporary file next to path and renames it into place.
func (e *Exporter) writeAtomic(path string, header []string, rows []*flatten.Row) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return &StorageError{Op: OpCreate, Path: path, Err: err}
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			if rmErr := os.Remove(tmpName); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
				err = multierror.Append(err, rmErr)
			}
		}
	}()

	if err = Write(tmp, header, rows); err != nil {
		return &StorageError{Op: OpWrite, Path: tmpName, Err: err}
	}
	if err = tmp.Sync(); err != nil {
		return &StorageError{Op: OpWrite, Path: tmpName, Err: err}
	}
	if err = tmp.Close(); err != nil {
		return &StorageError{Op: OpWrite, Path: tmpName, Err: err}
	}
	if err = os.Chmod(tmpName, filePerm); err != nil {
		return &StorageError{Op: OpWrite, Path: tmpName, Err: err}
	}
	if err = os.Rename(tmpName, path); err != nil {
		return &StorageError{Op: OpRename, Path: path, Err: err}
	}
	return nil
}

func (e *Exporter) fail(ctx context.Context, err error) error {
	op := opOf(err)
	metrics.RecordExportFailure(op)
	e.logger.Error(ctx, "failed to save CSV", logger.String("op", op), logger.Error(err))
	return err
}

func opOf(err error) string {
	var se *StorageError
	if errors.As(err, &se) {
		return se.Op
	}
	return OpWrite
}
