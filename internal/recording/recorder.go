// Package recording implements the interactive recorder: every reading is logged,
// echoed to the console with the latest rows, and answered with a doubled value.
package recording

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/lucaslui/hems/gait-processor/internal/datalog"
	"github.com/lucaslui/hems/gait-processor/internal/metrics"
	"github.com/lucaslui/hems/gait-processor/internal/model"
	"github.com/lucaslui/hems/gait-processor/internal/transform"
	"github.com/lucaslui/hems/gait-processor/internal/wsclient"
)

const clearScreen = "\033[H\033[2J"

type Options struct {
	// Tail is how many log rows are shown after each reading. Zero hides the table.
	Tail        int
	ClearScreen bool
}

type Recorder struct {
	log     *datalog.Log
	opts    Options
	metrics *metrics.Metrics
	logger  zerolog.Logger

	// Save runs on the signal goroutine, so console writes share a lock.
	outMu sync.Mutex
	out   io.Writer

	now func() time.Time
}

func NewRecorder(log *datalog.Log, out io.Writer, opts Options, m *metrics.Metrics, logger zerolog.Logger) *Recorder {
	return &Recorder{log: log, out: out, opts: opts, metrics: m, logger: logger, now: time.Now}
}

// Handle logs one frame, prints it and returns the reply for the relay.
func (r *Recorder) Handle(raw []byte) (model.ProcessedFrame, error) {
	msg, err := model.ParseInbound(raw)
	if err != nil {
		return model.ProcessedFrame{}, errors.Wrap(err, "parse frame")
	}

	now := r.now()
	row := datalog.Row{
		Timestamp: now,
		ClientID:  msg.ClientID(),
		Message:   msg.Message(),
		Value:     msg.Value(),
	}
	r.log.Append(row)
	r.metrics.RowLogged()

	if err := r.display(row); err != nil {
		r.logger.Warn().Err(err).Msg("console render error")
	}

	return model.ProcessedFrame{
		Type:           model.FrameProcessed,
		Message:        "Processed: " + row.Message,
		OriginalValue:  row.Value,
		ProcessedValue: transform.Double(row.Value),
	}, nil
}

func (r *Recorder) display(row datalog.Row) error {
	var b strings.Builder
	if r.opts.ClearScreen {
		b.WriteString(clearScreen)
	}
	fmt.Fprintf(&b, "⏰ %s - Real-time message received:\n", row.Timestamp.Format("15:04:05"))
	fmt.Fprintf(&b, "  From sensor: %s\n", row.ClientID)
	fmt.Fprintf(&b, "  Message: %s\n", row.Message)
	fmt.Fprintf(&b, "  Value: %s\n", model.FormatValue(row.Value))
	b.WriteString(strings.Repeat("-", 50) + "\n")

	if r.opts.Tail > 0 {
		rows := r.log.Tail(r.opts.Tail)
		fmt.Fprintf(&b, "\nData Log (Last %d entries):\n", r.opts.Tail)
		if err := datalog.RenderTable(&b, rows, r.log.Len()-len(rows)); err != nil {
			return err
		}
	}
	return r.print(b.String())
}

func (r *Recorder) print(s string) error {
	r.outMu.Lock()
	defer r.outMu.Unlock()
	_, err := io.WriteString(r.out, s)
	return err
}

// Serve handles frames until the session fails, a frame cannot be parsed, or ctx ends.
// A reply that cannot be encoded is dropped and the session goes on.
func (r *Recorder) Serve(ctx context.Context, s wsclient.Session) error {
	_ = r.print("Waiting for real-time messages from sensors...\n")
	for {
		raw, err := s.Read(ctx)
		if err != nil {
			return err
		}
		r.metrics.FrameReceived()

		reply, err := r.Handle(raw)
		if err != nil {
			r.metrics.ParseError()
			return err
		}
		if err := s.Send(reply); err != nil {
			if errors.Is(err, wsclient.ErrEncodeFrame) {
				r.logger.Error().Err(err).Str("message", reply.Message).Msg("reply dropped")
				continue
			}
			return errors.Wrap(err, "send reply")
		}
		r.metrics.AckSent()
	}
}

// Save writes the log through saver and reports the outcome on the console.
func (r *Recorder) Save(ctx context.Context, saver *datalog.Saver) ([]string, error) {
	paths, err := saver.Save(ctx, r.log)
	switch {
	case errors.Is(err, datalog.ErrEmptyLog):
		_ = r.print("No data to save yet\n")
		return nil, err
	case err != nil:
		r.logger.Error().Err(err).Msg("save error")
		return paths, err
	}
	for _, p := range paths {
		_ = r.print(fmt.Sprintf("Data log saved to %s\n", p))
	}
	return paths, nil
}
