package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"solanaetl/internal/model"
)

// ErrorSpill appends error records to a local JSONL file. It is the
// fallback when the warehouse error sink is unreachable: diagnostic
// context may be lost, event data is not.
type ErrorSpill struct {
	path string
	mu   sync.Mutex
}

func NewErrorSpill(path string) *ErrorSpill {
	return &ErrorSpill{path: path}
}

// Append writes records as JSON lines.
func (s *ErrorSpill) Append(records ...model.ErrorRecord) error {
	if len(records) == 0 {
		return nil
	}

	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create spill dir: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open spill file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for _, record := range records {
		line, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshal error record: %w", err)
		}
		if _, err := writer.Write(line); err != nil {
			return fmt.Errorf("write error record: %w", err)
		}
		if err := writer.WriteByte('\n'); err != nil {
			return fmt.Errorf("write newline: %w", err)
		}
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush spill: %w", err)
	}

	return nil
}
