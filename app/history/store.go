package history

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
	"github.com/lysyi3m/sec-comb/app/filing"
)

// ErrStorage marks failures reading or writing the history or feed files.
var ErrStorage = errors.New("storage error")

const (
	historyFile = "history.jsonl"
	latestFile  = "latest.json"
	maxLineSize = 1 << 20
)

// Store owns the files that survive between runs: the history under
// dataDir and the published feed.
type Store struct {
	historyPath string
	latestPath  string
	feedPath    string
}

func NewStore(dataDir, feedPath string) *Store {
	return &Store{
		historyPath: filepath.Join(dataDir, historyFile),
		latestPath:  filepath.Join(dataDir, latestFile),
		feedPath:    feedPath,
	}
}

func (s *Store) HistoryPath() string { return s.historyPath }
func (s *Store) FeedPath() string    { return s.feedPath }

// Load reads the history file. A missing file is the empty first-run state.
func (s *Store) Load() (State, error) {
	f, err := os.Open(s.historyPath)
	if errors.Is(err, os.ErrNotExist) {
		slog.Debug("No history file, starting empty", "path", s.historyPath)
		return State{}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("%w: failed to open history: %w", ErrStorage, err)
	}
	defer f.Close()

	var state State
	seen := filing.NewSeenSet()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	line := 0
	for scanner.Scan() {
		line++
		data := bytes.TrimSpace(scanner.Bytes())
		if len(data) == 0 {
			continue
		}

		var record filing.Record
		if err := json.Unmarshal(data, &record); err != nil {
			return State{}, fmt.Errorf("%w: %s line %d: %w", ErrStorage, s.historyPath, line, err)
		}
		if err := record.Validate(); err != nil {
			return State{}, fmt.Errorf("%w: %s line %d: %w", ErrStorage, s.historyPath, line, err)
		}

		if seen.Contains(record.ID) {
			slog.Warn("Duplicate filing in history, keeping first", "id", record.ID, "line", line)
			continue
		}
		seen.Add(record.ID)
		state.Records = append(state.Records, record)
	}

	if err := scanner.Err(); err != nil {
		return State{}, fmt.Errorf("%w: failed to read history: %w", ErrStorage, err)
	}

	return state.Merge(nil), nil
}

// Commit replaces the history, the latest-run snapshot and the feed.
// Every file is staged as a temp file next to its target first; nothing
// is renamed into place unless all of them were written.
func (s *Store) Commit(state State, feedXML []byte, latest []filing.Record) error {
	historyData, err := encodeHistory(state)
	if err != nil {
		return fmt.Errorf("%w: failed to encode history: %w", ErrStorage, err)
	}

	if latest == nil {
		latest = []filing.Record{}
	}
	latestData, err := json.MarshalIndent(latest, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: failed to encode latest filings: %w", ErrStorage, err)
	}
	latestData = append(latestData, '\n')

	files := []struct {
		path string
		data []byte
	}{
		{s.historyPath, historyData},
		{s.latestPath, latestData},
		{s.feedPath, feedXML},
	}

	var pending []*renameio.PendingFile
	defer func() {
		for _, pf := range pending {
			pf.Cleanup()
		}
	}()

	for _, file := range files {
		if err := os.MkdirAll(filepath.Dir(file.path), 0755); err != nil {
			return fmt.Errorf("%w: failed to create directory for %s: %w", ErrStorage, file.path, err)
		}

		pf, err := renameio.NewPendingFile(file.path, renameio.WithPermissions(0644))
		if err != nil {
			return fmt.Errorf("%w: failed to stage %s: %w", ErrStorage, file.path, err)
		}
		pending = append(pending, pf)

		if _, err := pf.Write(file.data); err != nil {
			return fmt.Errorf("%w: failed to write %s: %w", ErrStorage, file.path, err)
		}
	}

	for i, pf := range pending {
		if err := pf.CloseAtomicallyReplace(); err != nil {
			return fmt.Errorf("%w: failed to replace %s: %w", ErrStorage, files[i].path, err)
		}
	}

	return nil
}

func encodeHistory(state State) ([]byte, error) {
	var buf bytes.Buffer
	for _, record := range state.Records {
		data, err := json.Marshal(record)
		if err != nil {
			return nil, err
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}
