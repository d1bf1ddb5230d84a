package email

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kuitang/sitesmoke/internal/obs"
)

// Outbox captures mail instead of sending it. With a directory set, each
// message is also written there as a numbered JSON file.
type Outbox struct {
	mu       sync.Mutex
	messages []Message
	dir      string
	seq      uint64
	logger   *slog.Logger
	now      func() time.Time
}

// NewOutbox returns an Outbox writing to dir, or memory only when dir is "".
func NewOutbox(dir string, logger *slog.Logger) (*Outbox, error) {
	if logger == nil {
		logger = obs.Discard()
	}
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("email: create outbox dir: %w", err)
		}
	}
	return &Outbox{dir: dir, logger: logger, now: time.Now}, nil
}

type outboxEvent struct {
	Sequence       uint64   `json:"sequence"`
	To             []string `json:"to"`
	Subject        string   `json:"subject"`
	Text           string   `json:"text,omitempty"`
	SentAtUnixNano int64    `json:"sent_at_unix_nano"`
}

// Send records msg.
func (o *Outbox) Send(_ context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.messages = append(o.messages, msg)
	o.seq++
	o.logger.Info("email captured", "to", msg.To, "subject", msg.Subject, "sequence", o.seq)

	if o.dir == "" {
		return nil
	}
	raw, err := json.MarshalIndent(outboxEvent{
		Sequence:       o.seq,
		To:             msg.To,
		Subject:        msg.Subject,
		Text:           msg.Text,
		SentAtUnixNano: o.now().UnixNano(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("email: encode outbox event: %w", err)
	}
	name := filepath.Join(o.dir, fmt.Sprintf("%06d.json", o.seq))
	if err := os.WriteFile(name, raw, 0o644); err != nil {
		return fmt.Errorf("email: write outbox event: %w", err)
	}
	return nil
}

// Messages returns a copy of everything captured so far.
func (o *Outbox) Messages() []Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Message(nil), o.messages...)
}

// Last returns the most recent message, or the zero Message.
func (o *Outbox) Last() Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.messages) == 0 {
		return Message{}
	}
	return o.messages[len(o.messages)-1]
}
