// Package audit keeps a tamper-evident trail of rejected requests. Each JSON
// line carries an HMAC over its content and the previous line's hash.
package audit

import (
	"bufio"
	"bytes"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

type EventType string

const (
	EventUnauthorized      EventType = "unauthorized"
	EventSignatureRejected EventType = "signature_rejected"
	EventRateLimited       EventType = "rate_limited"
	EventFollowUpBlocked   EventType = "followup_blocked"
)

type Event struct {
	Timestamp    time.Time `json:"timestamp"`
	Type         EventType `json:"type"`
	Route        string    `json:"route,omitempty"`
	UserID       string    `json:"user_id,omitempty"`
	TeamID       string    `json:"team_id,omitempty"`
	Source       string    `json:"source,omitempty"`
	Detail       string    `json:"detail,omitempty"`
	Hash         string    `json:"hash"`
	PreviousHash string    `json:"previous_hash,omitempty"`
}

type Config struct {
	Enabled bool
	Path    string
	// Key signs each entry. When empty a random key is generated, so the
	// trail can only be verified by the process that wrote it.
	Key []byte
}

type Logger struct {
	key      []byte
	path     string
	file     *os.File
	mu       sync.Mutex
	lastHash string
}

// Open returns nil when auditing is disabled; a nil *Logger discards
// everything.
func Open(cfg Config) (*Logger, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if cfg.Path == "" {
		return nil, errors.New("audit log path is required")
	}

	key := cfg.Key
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate audit key: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}
	last, err := lastHash(cfg.Path)
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log file: %w", err)
	}

	return &Logger{key: key, path: cfg.Path, file: f, lastHash: last}, nil
}

func (l *Logger) Record(ev Event) error {
	if l == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return errors.New("audit log is closed")
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	ev.PreviousHash = l.lastHash
	ev.Hash = sign(l.key, ev)

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}
	if _, err := l.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write audit event: %w", err)
	}
	l.lastHash = ev.Hash
	return nil
}

func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// Verify checks every entry's signature and chain link in the file at path.
func Verify(path string, key []byte) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var prev string
	line := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if ev.PreviousHash != prev {
			return fmt.Errorf("line %d: hash chain broken", line)
		}
		if !hmac.Equal([]byte(ev.Hash), []byte(sign(key, ev))) {
			return fmt.Errorf("line %d: signature mismatch", line)
		}
		prev = ev.Hash
	}
	return sc.Err()
}

func sign(key []byte, ev Event) string {
	h := hmac.New(sha256.New, key)
	fmt.Fprintf(h, "%s|%s|%s|%s|%s|%s|%s|%s",
		ev.Timestamp.Format(time.RFC3339Nano),
		ev.Type, ev.Route, ev.UserID, ev.TeamID, ev.Source, ev.Detail,
		ev.PreviousHash,
	)
	return hex.EncodeToString(h.Sum(nil))
}

func lastHash(path string) (string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read audit log: %w", err)
	}

	lines := bytes.Split(bytes.TrimSpace(data), []byte{'\n'})
	last := lines[len(lines)-1]
	if len(last) == 0 {
		return "", nil
	}
	var ev Event
	if err := json.Unmarshal(last, &ev); err != nil {
		return "", fmt.Errorf("read audit log tail: %w", err)
	}
	return ev.Hash, nil
}
