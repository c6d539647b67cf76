package audit

import (
	"encoding/json"
	"errors"
	"sync"
	"time"
)

type Action string

const (
	ActionFound    Action = "FOUND"
	ActionNotFound Action = "NOT_FOUND"
	ActionDelete   Action = "DELETE"
	ActionKeep     Action = "KEEP"
	ActionDryRun   Action = "DRY_RUN"
	ActionFailed   Action = "FAILED"
)

type Entry struct {
	Timestamp  time.Time `json:"timestamp"`
	Action     Action    `json:"action"`
	Login      string    `json:"login"`
	IdentityID string    `json:"identityId,omitempty"`
	Email      string    `json:"email,omitempty"`
	Message    string    `json:"message,omitempty"`
	Error      error     `json:"-"`
}

func (e Entry) MarshalJSON() ([]byte, error) {
	type Alias Entry
	var errStr string
	if e.Error != nil {
		errStr = e.Error.Error()
	}
	return json.Marshal(&struct {
		Alias
		Error string `json:"error,omitempty"`
	}{
		Alias: Alias(e),
		Error: errStr,
	})
}

func (e *Entry) UnmarshalJSON(data []byte) error {
	type Alias Entry
	aux := &struct {
		*Alias
		Error string `json:"error,omitempty"`
	}{
		Alias: (*Alias)(e),
	}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	if aux.Error != "" {
		e.Error = errors.New(aux.Error)
	}
	return nil
}

// DefaultMaxEntries bounds a Log built without WithMaxEntries.
const DefaultMaxEntries = 10000

// Log collects the entries of one or more syncs, keeping the most recent
// maxEntries and dropping the oldest. Safe for concurrent use. A nil *Log
// records nothing and reports no entries.
type Log struct {
	mu      sync.Mutex
	entries []Entry
	head    int
	max     int
	now     func() time.Time
}

type LogOption func(*Log)

// WithMaxEntries caps the number of retained entries. n < 1 keeps the default.
func WithMaxEntries(n int) LogOption {
	return func(l *Log) {
		if n > 0 {
			l.max = n
		}
	}
}

func NewLog(opts ...LogOption) *Log {
	l := &Log{max: DefaultMaxEntries, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Log) Record(action Action, login, id, email, message string) {
	l.append(Entry{
		Action:     action,
		Login:      login,
		IdentityID: id,
		Email:      email,
		Message:    message,
	})
}

func (l *Log) RecordError(login, id, email string, err error) {
	l.append(Entry{
		Action:     ActionFailed,
		Login:      login,
		IdentityID: id,
		Email:      email,
		Error:      err,
	})
}

func (l *Log) append(e Entry) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	e.Timestamp = l.now()
	if len(l.entries) < l.max {
		l.entries = append(l.entries, e)
		return
	}
	l.entries[l.head] = e
	l.head = (l.head + 1) % l.max
}

// Entries returns the retained entries, oldest first.
func (l *Log) Entries() []Entry {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, 0, len(l.entries))
	out = append(out, l.entries[l.head:]...)
	return append(out, l.entries[:l.head]...)
}

func (l *Log) Counts() map[string]int {
	counts := make(map[string]int)
	if l == nil {
		return counts
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		counts[string(e.Action)]++
		if e.Error != nil {
			counts["ERRORS"]++
		}
	}
	return counts
}
