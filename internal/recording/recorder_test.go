package recording

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucaslui/hems/gait-processor/internal/datalog"
	"github.com/lucaslui/hems/gait-processor/internal/metrics"
	"github.com/lucaslui/hems/gait-processor/internal/model"
	"github.com/lucaslui/hems/gait-processor/internal/transform"
	"github.com/lucaslui/hems/gait-processor/internal/wsclient"
)

type scriptedSession struct {
	frames []string
	sent   []any
	// sendErrs are returned by the first Send calls in order.
	sendErrs []error
}

func (s *scriptedSession) Read(ctx context.Context) ([]byte, error) {
	if len(s.frames) == 0 {
		return nil, io.EOF
	}
	f := s.frames[0]
	s.frames = s.frames[1:]
	return []byte(f), nil
}

func (s *scriptedSession) Send(v any) error {
	if len(s.sendErrs) > 0 {
		err := s.sendErrs[0]
		s.sendErrs = s.sendErrs[1:]
		if err != nil {
			return err
		}
	}
	s.sent = append(s.sent, v)
	return nil
}

func (s *scriptedSession) Close() error { return nil }

func newTestRecorder(out *bytes.Buffer, opts Options) (*Recorder, *datalog.Log) {
	l := datalog.New()
	r := NewRecorder(l, out, opts, nil, zerolog.Nop())
	r.now = func() time.Time { return time.Date(2024, 3, 9, 14, 5, 7, 0, time.Local) }
	return r, l
}

func TestHandleDoublesNumericValue(t *testing.T) {
	var out bytes.Buffer
	r, l := newTestRecorder(&out, Options{Tail: 5})

	reply, err := r.Handle([]byte(`{"clientId":"esp-1","message":"step","value":7}`))
	require.NoError(t, err)

	b, err := json.Marshal(reply)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"processed","message":"Processed: step","originalValue":7,"processedValue":14}`, string(b))

	require.Equal(t, 1, l.Len())
	row := l.Snapshot()[0]
	assert.Equal(t, "esp-1", row.ClientID)
	assert.Equal(t, "step", row.Message)
	assert.Equal(t, 7.0, row.Value)
}

func TestHandleDefaultsAndNonNumericValue(t *testing.T) {
	var out bytes.Buffer
	r, l := newTestRecorder(&out, Options{})

	reply, err := r.Handle([]byte(`{"value":"ok"}`))
	require.NoError(t, err)
	assert.Equal(t, "Processed: No message", reply.Message)
	assert.Equal(t, "ok", reply.OriginalValue)
	assert.Equal(t, "ok", reply.ProcessedValue)

	reply, err = r.Handle([]byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, model.NoValue, reply.OriginalValue)
	assert.Equal(t, model.NoValue, reply.ProcessedValue)
	assert.Equal(t, model.UnknownClient, l.Snapshot()[1].ClientID)
}

func TestHandleRendersReadingAndTail(t *testing.T) {
	var out bytes.Buffer
	r, _ := newTestRecorder(&out, Options{Tail: 2, ClearScreen: true})

	for i := 0; i < 3; i++ {
		_, err := r.Handle([]byte(`{"clientId":"esp-1","message":"m","value":1}`))
		require.NoError(t, err)
	}

	frames := strings.Split(out.String(), clearScreen)
	require.Len(t, frames, 4)
	last := frames[3]
	assert.Contains(t, last, "⏰ 14:05:07 - Real-time message received:")
	assert.Contains(t, last, "  From sensor: esp-1")
	assert.Contains(t, last, "  Value: 1")
	assert.Contains(t, last, "Data Log (Last 2 entries):")

	table := last[strings.Index(last, "Data Log"):]
	lines := strings.Split(strings.TrimRight(table, "\n"), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[2], "1 "))
	assert.True(t, strings.HasPrefix(lines[3], "2 "))
}

func TestHandleRejectsNonObject(t *testing.T) {
	var out bytes.Buffer
	r, l := newTestRecorder(&out, Options{})

	_, err := r.Handle([]byte(`"hello"`))
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrNotObject)
	assert.Equal(t, 0, l.Len())
}

func TestServeRepliesUntilSessionEnds(t *testing.T) {
	var out bytes.Buffer
	reg := prometheus.NewRegistry()
	l := datalog.New()
	r := NewRecorder(l, &out, Options{Tail: 5}, metrics.New(reg), zerolog.Nop())

	s := &scriptedSession{frames: []string{
		`{"clientId":"esp-1","value":2.5}`,
		`{"clientId":"esp-2","value":true}`,
	}}
	err := r.Serve(context.Background(), s)
	assert.ErrorIs(t, err, io.EOF)

	require.Len(t, s.sent, 2)
	assert.Equal(t, 5.0, s.sent[0].(model.ProcessedFrame).ProcessedValue)
	assert.Equal(t, true, s.sent[1].(model.ProcessedFrame).OriginalValue)
	assert.Equal(t, 2, s.sent[1].(model.ProcessedFrame).ProcessedValue)
	assert.Equal(t, 2, l.Len())

	expected := `
# HELP gait_rows_logged_total Rows appended to the recorder data log.
# TYPE gait_rows_logged_total counter
gait_rows_logged_total 2
# HELP gait_acks_sent_total Acknowledgement or reply frames sent back to the relay.
# TYPE gait_acks_sent_total counter
gait_acks_sent_total 2
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"gait_rows_logged_total", "gait_acks_sent_total"))
}

func TestServeRepliesToHugeValues(t *testing.T) {
	var out bytes.Buffer
	r, l := newTestRecorder(&out, Options{})

	s := &scriptedSession{frames: []string{`{"value":1e308}`, `{"value":-1.7e308}`, `{"value":2}`}}
	err := r.Serve(context.Background(), s)
	assert.ErrorIs(t, err, io.EOF)

	require.Len(t, s.sent, 3)
	assert.Equal(t, transform.PosInfinity, s.sent[0].(model.ProcessedFrame).ProcessedValue)
	assert.Equal(t, transform.NegInfinity, s.sent[1].(model.ProcessedFrame).ProcessedValue)
	assert.Equal(t, 4.0, s.sent[2].(model.ProcessedFrame).ProcessedValue)
	assert.Equal(t, 3, l.Len())

	for _, v := range s.sent {
		_, err := json.Marshal(v)
		assert.NoError(t, err)
	}
}

func TestServeSkipsReplyThatCannotBeEncoded(t *testing.T) {
	var out bytes.Buffer
	r, l := newTestRecorder(&out, Options{})

	s := &scriptedSession{
		frames:   []string{`{"value":1}`, `{"value":2}`},
		sendErrs: []error{errors.Wrap(wsclient.ErrEncodeFrame, "json: unsupported value: +Inf")},
	}
	err := r.Serve(context.Background(), s)
	assert.ErrorIs(t, err, io.EOF)
	require.Len(t, s.sent, 1)
	assert.Equal(t, 4.0, s.sent[0].(model.ProcessedFrame).ProcessedValue)
	assert.Equal(t, 2, l.Len())
}

func TestServeEndsOnWriteError(t *testing.T) {
	var out bytes.Buffer
	r, _ := newTestRecorder(&out, Options{})

	s := &scriptedSession{
		frames:   []string{`{"value":1}`, `{"value":2}`},
		sendErrs: []error{errors.New("broken pipe")},
	}
	err := r.Serve(context.Background(), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "send reply")
	assert.Empty(t, s.sent)
}

func TestServeEndsOnParseError(t *testing.T) {
	var out bytes.Buffer
	r, l := newTestRecorder(&out, Options{})

	s := &scriptedSession{frames: []string{`{"value":1}`, `oops`, `{"value":2}`}}
	err := r.Serve(context.Background(), s)
	require.Error(t, err)
	assert.Len(t, s.sent, 1)
	assert.Equal(t, 1, l.Len())
}

func TestSave(t *testing.T) {
	var out bytes.Buffer
	r, _ := newTestRecorder(&out, Options{})
	saver := &datalog.Saver{Dir: t.TempDir(), Format: datalog.FormatCSV, Logger: zerolog.Nop()}

	_, err := r.Save(context.Background(), saver)
	assert.ErrorIs(t, err, datalog.ErrEmptyLog)
	assert.Contains(t, out.String(), "No data to save yet")

	_, err = r.Handle([]byte(`{"value":1}`))
	require.NoError(t, err)
	paths, err := r.Save(context.Background(), saver)
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Contains(t, out.String(), "Data log saved to "+paths[0])

	b, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	assert.Contains(t, string(b), "2024-03-09 14:05:07.000000,unknown,No message,1")
}
