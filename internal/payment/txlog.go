package payment

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// TxLog is the append-only transaction audit file. Each entry is one
// timestamped, level-tagged line. Writes are best-effort: a failed append
// never fails the payment that produced it.
type TxLog struct {
	mu   sync.Mutex
	path string
}

// NewTxLog opens (creating if needed) the audit file at path.
func NewTxLog(path string) (*TxLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open transaction log %q: %w", path, err)
	}
	f.Close()
	return &TxLog{path: path}, nil
}

// Path returns the audit file location.
func (l *TxLog) Path() string {
	return l.path
}

// Append writes one entry. Errors are swallowed.
func (l *TxLog) Append(level, message string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return
	}
	defer f.Close()

	line := fmt.Sprintf("%s [%s] %s\n", time.Now().Format(time.RFC3339), level, message)
	_, _ = f.WriteString(line)
}

// Clear truncates the audit file in place.
func (l *TxLog) Clear() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.Truncate(l.path, 0); err != nil {
		return fmt.Errorf("clear transaction log %q: %w", l.path, err)
	}
	return nil
}
