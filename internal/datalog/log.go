// Package datalog keeps the recorder's in-memory reading log and writes it out on demand.
package datalog

import (
	"sync"
	"time"
)

var Columns = []string{"timestamp", "client_id", "message", "value"}

type Row struct {
	Timestamp time.Time
	ClientID  string
	Message   string
	Value     any
}

// Log is append-only and unbounded. The save trigger runs on its own goroutine,
// so every access goes through mu.
type Log struct {
	mu   sync.Mutex
	rows []Row
}

func New() *Log { return &Log{} }

func (l *Log) Append(r Row) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rows = append(l.rows, r)
	return len(l.rows)
}

func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.rows)
}

// Tail returns a copy of the last n rows, oldest first.
func (l *Log) Tail(n int) []Row {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n <= 0 {
		return nil
	}
	if n > len(l.rows) {
		n = len(l.rows)
	}
	out := make([]Row, n)
	copy(out, l.rows[len(l.rows)-n:])
	return out
}

// Snapshot returns a copy of every row.
func (l *Log) Snapshot() []Row {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Row, len(l.rows))
	copy(out, l.rows)
	return out
}
