// Package jsonl persists pool records as an append-only JSON-lines journal.
// Replaying the journal keeps the last record written for each pool.
package jsonl

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/gagliardetto/solana-go"

	"github.com/defistate/defistate-amm/engine"
	"github.com/defistate/defistate-amm/logging"
)

const tailChunk = 4096

// Store appends pool records to a JSONL file.
type Store struct {
	path   string
	logger logging.Logger
	mu     sync.Mutex
}

// New opens a journal at path. A nil logger discards skipped-line warnings.
func New(path string, logger logging.Logger) (*Store, error) {
	if path == "" {
		return nil, errors.New("jsonl store: path is required")
	}
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Store{path: path, logger: logger}, nil
}

// SavePools appends a batch of records. The batch is written with a single
// write call so a failed write leaves at most a truncated trailing line.
// That line is cut off before the next batch is appended.
func (s *Store) SavePools(ctx context.Context, pools []engine.Pool) error {
	if len(pools) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var buf []byte
	for _, pool := range pools {
		line, err := json.Marshal(pool)
		if err != nil {
			return fmt.Errorf("marshal pool %s: %w", pool.ID, err)
		}
		buf = append(buf, line...)
		buf = append(buf, '\n')
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer file.Close()

	end, err := s.repairTail(file)
	if err != nil {
		return err
	}
	if _, err := file.WriteAt(buf, end); err != nil {
		return fmt.Errorf("write journal: %w", err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("sync journal: %w", err)
	}
	return nil
}

// repairTail truncates a partial last line left by an interrupted write and
// returns the offset the next batch starts at.
func (s *Store) repairTail(file *os.File) (int64, error) {
	info, err := file.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat journal: %w", err)
	}
	size := info.Size()
	if size == 0 {
		return 0, nil
	}

	last := make([]byte, 1)
	if _, err := file.ReadAt(last, size-1); err != nil {
		return 0, fmt.Errorf("read journal tail: %w", err)
	}
	if last[0] == '\n' {
		return size, nil
	}

	end := int64(0)
	chunk := make([]byte, tailChunk)
	for off := size; off > 0 && end == 0; {
		n := min(int64(tailChunk), off)
		off -= n
		if _, err := file.ReadAt(chunk[:n], off); err != nil {
			return 0, fmt.Errorf("read journal tail: %w", err)
		}
		if i := bytes.LastIndexByte(chunk[:n], '\n'); i >= 0 {
			end = off + int64(i) + 1
		}
	}
	if err := file.Truncate(end); err != nil {
		return 0, fmt.Errorf("truncate journal tail: %w", err)
	}
	s.logger.Warn("truncated partial journal line", "path", s.path, "offset", end, "dropped", size-end)
	return end, nil
}

// LoadPools replays the journal and returns the latest record per pool, sorted by ID.
func (s *Store) LoadPools(ctx context.Context) ([]engine.Pool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer file.Close()

	latest := make(map[solana.PublicKey]engine.Pool)
	reader := bufio.NewReader(file)
	for lineNo := 1; ; lineNo++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line, err := reader.ReadBytes('\n')
		if errors.Is(err, io.EOF) {
			// a trailing line without newline is an interrupted write
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read journal: %w", err)
		}

		var pool engine.Pool
		if err := json.Unmarshal(line, &pool); err != nil {
			s.logger.Warn("skipping unreadable journal line", "path", s.path, "line", lineNo, "error", err)
			continue
		}
		latest[pool.ID] = pool
	}

	pools := make([]engine.Pool, 0, len(latest))
	for _, pool := range latest {
		pools = append(pools, pool)
	}
	engine.SortPools(pools)
	return pools, nil
}

func (s *Store) Close() error { return nil }
