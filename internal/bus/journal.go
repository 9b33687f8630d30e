package bus

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/Iron-Ham/codecrew/internal/logging"
)

// JournalFileName is the append-only JSONL file a Journal writes.
const JournalFileName = "messages.jsonl"

// Journal persists published messages as JSONL (one JSON object per line) in
// an append-only file. The directory is created lazily on first write.
type Journal struct {
	path   string
	mu     sync.Mutex
	logger *logging.Logger
}

// NewJournal creates a Journal writing {dir}/messages.jsonl.
func NewJournal(dir string, logger *logging.Logger) *Journal {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Journal{
		path:   filepath.Join(dir, JournalFileName),
		logger: logger,
	}
}

// Path returns the journal file path.
func (j *Journal) Path() string {
	return j.path
}

// Attach subscribes the journal to every message on b and returns the
// subscription ID. Write failures are logged; they never interrupt delivery.
func (j *Journal) Attach(b *Bus) string {
	return b.Subscribe(Broadcast, func(msg Message) {
		if err := j.Record(msg); err != nil {
			j.logger.Warn("failed to journal message", "message_id", msg.ID, "error", err.Error())
		}
	})
}

// Record appends msg to the journal.
func (j *Journal) Record(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("journal: marshal message: %w", err)
	}
	data = append(data, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(j.path), 0o755); err != nil {
		return fmt.Errorf("journal: create directory: %w", err)
	}

	f, err := os.OpenFile(j.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("journal: open for append: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("journal: append: %w", err)
	}
	return f.Close()
}

// Read returns every journaled message in append order. A missing journal
// yields no messages and no error. Malformed lines are skipped.
func (j *Journal) Read() ([]Message, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.Open(j.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("journal: open: %w", err)
	}
	defer func() { _ = f.Close() }()

	var messages []Message
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var msg Message
		if err := json.Unmarshal(line, &msg); err != nil {
			continue
		}
		messages = append(messages, msg)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("journal: scan: %w", err)
	}
	return messages, nil
}
