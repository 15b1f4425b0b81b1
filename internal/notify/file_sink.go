package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"greendrake/trueque/internal/models"
)

// FileSink appends every event as one JSON line to a file.
type FileSink struct {
	mu       sync.Mutex
	filePath string
}

// NewFileSink creates a new FileSink.
// It ensures the directory for the log file exists.
func NewFileSink(filePath string) (*FileSink, error) {
	if strings.TrimSpace(filePath) == "" {
		return nil, fmt.Errorf("event log file path cannot be empty")
	}

	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory for event log file '%s': %w", dir, err)
	}

	return &FileSink{filePath: filePath}, nil
}

func (s *FileSink) Publish(_ context.Context, event models.Event) error {
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(s.filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("FileSink: Failed to open log file '%s': %v", s.filePath, err)
		return fmt.Errorf("failed to open event log file: %w", err)
	}
	defer file.Close()

	if _, err := file.Write(line); err != nil {
		log.Printf("FileSink: Failed to write to log file '%s': %v", s.filePath, err)
		return fmt.Errorf("failed to write event to log file: %w", err)
	}
	return nil
}
