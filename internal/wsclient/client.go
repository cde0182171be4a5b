// Package wsclient connects to the relay over WebSocket and announces the client role.
//
// Every established connection sends exactly one register frame before anything
// else. No acknowledgement is awaited.
package wsclient

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/lucaslui/hems/gait-processor/internal/model"
)

// ErrEncodeFrame marks a Send whose value could not be encoded. Nothing was
// written, so the connection is still usable.
var ErrEncodeFrame = errors.New("encode frame")

// Session is one registered relay connection.
type Session interface {
	// Read blocks for the next text frame. Cancelling ctx closes the connection.
	Read(ctx context.Context) ([]byte, error)
	Send(v any) error
	Close() error
}

type Options struct {
	URL              string
	Role             string
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	Header           http.Header
}

// Connect dials the relay and sends the register frame.
func Connect(ctx context.Context, opts Options, logger zerolog.Logger) (Session, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: opts.HandshakeTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, opts.URL, opts.Header)
	if err != nil {
		if resp != nil {
			return nil, errors.Wrapf(err, "dial %s (status %s)", opts.URL, resp.Status)
		}
		return nil, errors.Wrapf(err, "dial %s", opts.URL)
	}

	s := &wsSession{conn: conn, writeTimeout: opts.WriteTimeout}
	register := model.NewRegisterFrame(opts.Role)
	if err := s.Send(register); err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "send register frame")
	}
	logger.Info().Str("url", opts.URL).Str("role", register.Role).Msg("registered on relay")
	return s, nil
}

type wsSession struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func (s *wsSession) Read(ctx context.Context) ([]byte, error) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = s.Close()
		case <-done:
		}
	}()

	for {
		kind, data, err := s.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, errors.Wrap(err, "read frame")
		}
		if kind == websocket.TextMessage || kind == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (s *wsSession) Send(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(ErrEncodeFrame, err.Error())
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.writeTimeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, b); err != nil {
		return errors.Wrap(err, "write frame")
	}
	return nil
}

func (s *wsSession) Close() error {
	s.closeOnce.Do(func() {
		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		s.writeMu.Unlock()
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}
