package datalog

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"
)

var t0 = time.Date(2024, 3, 9, 14, 5, 7, 123456000, time.Local)

func sampleLog() *Log {
	l := New()
	l.Append(Row{Timestamp: t0, ClientID: "esp-1", Message: "step", Value: 42.0})
	l.Append(Row{Timestamp: t0.Add(time.Second), ClientID: "esp-2", Message: "No message", Value: "No value"})
	l.Append(Row{Timestamp: t0.Add(2 * time.Second), ClientID: "unknown", Message: "heel, toe", Value: 1.5})
	return l
}

func TestLogTail(t *testing.T) {
	l := sampleLog()

	assert.Equal(t, 3, l.Len())
	tail := l.Tail(2)
	require.Len(t, tail, 2)
	assert.Equal(t, "esp-2", tail[0].ClientID)
	assert.Equal(t, "unknown", tail[1].ClientID)

	assert.Len(t, l.Tail(10), 3)
	assert.Nil(t, l.Tail(0))

	tail[0].ClientID = "mutated"
	assert.Equal(t, "esp-2", l.Snapshot()[1].ClientID)
}

func TestLogConcurrentAppend(t *testing.T) {
	l := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				l.Append(Row{Timestamp: time.Now()})
				_ = l.Snapshot()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 800, l.Len())
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleLog().Snapshot()))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, []string{"timestamp", "client_id", "message", "value"}, records[0])
	assert.Equal(t, []string{"2024-03-09 14:05:07.123456", "esp-1", "step", "42"}, records[1])
	assert.Equal(t, []string{"2024-03-09 14:05:08.123456", "esp-2", "No message", "No value"}, records[2])
	assert.Equal(t, "heel, toe", records[3][2])
	assert.Equal(t, "1.5", records[3][3])
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "gait_data_log_20240309_140507", FileName(t0))
}

type fakeUploader struct {
	paths []string
	err   error
}

func (f *fakeUploader) UploadFile(ctx context.Context, path string, at time.Time) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.paths = append(f.paths, path)
	return "gait-logs/" + filepath.Base(path), nil
}

func TestSaverWritesCSV(t *testing.T) {
	dir := t.TempDir()
	s := &Saver{Dir: dir, Format: FormatCSV, Logger: zerolog.Nop(), now: func() time.Time { return t0 }}

	paths, err := s.Save(context.Background(), sampleLog())
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(dir, "gait_data_log_20240309_140507.csv")}, paths)

	b, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	assert.Len(t, lines, 4)
	assert.Equal(t, "timestamp,client_id,message,value", lines[0])
}

func TestSaverEmptyLog(t *testing.T) {
	dir := t.TempDir()
	s := &Saver{Dir: dir, Logger: zerolog.Nop()}

	paths, err := s.Save(context.Background(), New())
	assert.ErrorIs(t, err, ErrEmptyLog)
	assert.Empty(t, paths)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSaverBothFormatsAndUpload(t *testing.T) {
	dir := t.TempDir()
	up := &fakeUploader{}
	s := &Saver{
		Dir:         dir,
		Format:      FormatBoth,
		Compression: "ZSTD",
		Uploader:    up,
		Logger:      zerolog.Nop(),
		now:         func() time.Time { return t0 },
	}

	paths, err := s.Save(context.Background(), sampleLog())
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.True(t, strings.HasSuffix(paths[0], ".csv"))
	assert.True(t, strings.HasSuffix(paths[1], ".parquet"))
	assert.Equal(t, paths, up.paths)

	fr, err := local.NewLocalFileReader(paths[1])
	require.NoError(t, err)
	defer fr.Close()
	pr, err := reader.NewParquetReader(fr, new(ParquetRow), 1)
	require.NoError(t, err)
	defer pr.ReadStop()

	n := int(pr.GetNumRows())
	require.Equal(t, 3, n)
	rows := make([]ParquetRow, n)
	require.NoError(t, pr.Read(&rows))
	assert.Equal(t, "esp-1", rows[0].ClientID)
	assert.Equal(t, "42", rows[0].Value)
	assert.Equal(t, t0.UnixMilli(), rows[0].Timestamp)
}

func TestSaverUploadFailureKeepsLocalFile(t *testing.T) {
	dir := t.TempDir()
	s := &Saver{Dir: dir, Uploader: &fakeUploader{err: errors.New("bucket gone")}, Logger: zerolog.Nop()}

	paths, err := s.Save(context.Background(), sampleLog())
	require.NoError(t, err)
	require.Len(t, paths, 1)
	_, err = os.Stat(paths[0])
	assert.NoError(t, err)
}

func TestRenderTable(t *testing.T) {
	var buf bytes.Buffer
	l := sampleLog()
	require.NoError(t, RenderTable(&buf, l.Tail(2), l.Len()-2))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "client_id")
	assert.True(t, strings.HasPrefix(lines[1], "1"))
	assert.Contains(t, lines[1], "esp-2")
	assert.Contains(t, lines[2], "heel, toe")
}
