package store

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/overlab-kevin/clinical-trial-matcher/internal/evaluation"

	"go.uber.org/zap"
)

// maxLineBytes bounds a single stored result. Reasoning fields are long but
// nowhere near this.
const maxLineBytes = 4 * 1024 * 1024

// Store is an append-only results file with one JSON result per line.
type Store struct {
	path   string
	logger *zap.Logger
}

func New(path string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{path: path, logger: logger}
}

func (s *Store) Path() string {
	return s.path
}

// Load reads all results from the file. A missing file yields an empty list.
// Unreadable lines are skipped with a warning rather than failing the load.
func (s *Store) Load() (evaluation.Results, error) {
	file, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening results file: %w", err)
	}
	defer file.Close()

	var results evaluation.Results

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	line := 0
	for scanner.Scan() {
		line++

		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}

		var res evaluation.Result
		if err := json.Unmarshal(raw, &res); err != nil {
			s.logger.Warn("skipping unreadable result line",
				zap.String("path", s.path),
				zap.Int("line", line),
				zap.Error(err),
			)
			continue
		}

		results = append(results, &res)
	}

	if err := scanner.Err(); err != nil {
		s.logger.Warn("results file truncated while reading",
			zap.String("path", s.path),
			zap.Int("lines_read", line),
			zap.Error(err),
		)
	}

	return results, nil
}

// ProcessedIDs returns the set of trial IDs already present in the file.
func (s *Store) ProcessedIDs() (map[string]struct{}, error) {
	results, err := s.Load()
	if err != nil {
		return nil, err
	}
	return results.IDSet(), nil
}

// Append writes a single result to the end of the file, creating it when
// needed.
func (s *Store) Append(res *evaluation.Result) error {
	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening results file for append: %w", err)
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("appending result for trial %s: %w", res.TrialID, err)
	}

	return nil
}
