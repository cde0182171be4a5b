package datalog

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

var ErrEmptyLog = errors.New("no data to save yet")

const (
	FormatCSV     = "csv"
	FormatParquet = "parquet"
	FormatBoth    = "both"
)

// Uploader copies a saved file to object storage and returns the object name.
type Uploader interface {
	UploadFile(ctx context.Context, path string, at time.Time) (string, error)
}

type Saver struct {
	Dir         string
	Format      string
	Compression string

	// Uploader is optional. Upload failures are logged and never undo the local save.
	Uploader Uploader
	Logger   zerolog.Logger

	now func() time.Time
}

// FileName returns the base name of a save started at t, without extension.
func FileName(t time.Time) string {
	return "gait_data_log_" + t.Format("20060102_150405")
}

// Save writes the whole log and returns the paths written.
func (s *Saver) Save(ctx context.Context, l *Log) ([]string, error) {
	rows := l.Snapshot()
	if len(rows) == 0 {
		return nil, ErrEmptyLog
	}

	now := time.Now
	if s.now != nil {
		now = s.now
	}
	at := now()
	base := filepath.Join(s.Dir, FileName(at))

	dir := s.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create output dir %s", dir)
	}

	var paths []string
	if s.Format == "" || s.Format == FormatCSV || s.Format == FormatBoth {
		p := base + ".csv"
		if err := writeCSVFile(p, rows); err != nil {
			return paths, err
		}
		paths = append(paths, p)
	}
	if s.Format == FormatParquet || s.Format == FormatBoth {
		p := base + ".parquet"
		if err := WriteParquet(p, rows, s.Compression); err != nil {
			return paths, err
		}
		paths = append(paths, p)
	}

	for _, p := range paths {
		s.Logger.Info().Str("file", p).Int("rows", len(rows)).Msg("data log saved")
	}

	if s.Uploader != nil {
		for _, p := range paths {
			obj, err := s.Uploader.UploadFile(ctx, p, at)
			if err != nil {
				s.Logger.Error().Err(err).Str("file", p).Msg("upload error")
				continue
			}
			s.Logger.Info().Str("file", p).Str("object", obj).Msg("upload OK")
		}
	}
	return paths, nil
}

func writeCSVFile(path string, rows []Row) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	if err := WriteCSV(f, rows); err != nil {
		_ = f.Close()
		return err
	}
	return errors.Wrapf(f.Close(), "close %s", path)
}
