package stratumcore

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const foundBlockQueueSize = 64

var errStoreClosed = errors.New("found block store closed")

// FoundBlock is one journaled block candidate.
type FoundBlock struct {
	Hash        string
	Height      int64
	JobID       string
	Worker      string
	ShareDiff   float64
	BlockHex    string
	Record      ShareRecord
	FoundAt     time.Time
	Submitted   bool
	SubmitError string
}

type foundBlockWrite struct {
	rec      ShareRecord
	blockHex string
	// update marks an existing row with a submission outcome.
	update    bool
	submitErr string
}

// FoundBlockStore journals block candidates to sqlite. It is an EventSink;
// writes happen on a background goroutine so the share path never blocks on
// disk I/O.
type FoundBlockStore struct {
	db *sql.DB
	ch chan foundBlockWrite

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func OpenFoundBlockStore(path string) (*FoundBlockStore, error) {
	db, err := openFoundBlockDB(path)
	if err != nil {
		return nil, err
	}
	s := &FoundBlockStore{
		db: db,
		ch: make(chan foundBlockWrite, foundBlockQueueSize),
	}
	s.wg.Add(1)
	go s.run()
	return s, nil
}

func openFoundBlockDB(dbPath string) (*sql.DB, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, os.ErrInvalid
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath+"?_foreign_keys=1&_journal=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS found_blocks (
			hash TEXT PRIMARY KEY,
			height INTEGER NOT NULL,
			job_id TEXT NOT NULL,
			worker TEXT,
			share_diff REAL NOT NULL,
			block_hex TEXT NOT NULL,
			record_json TEXT NOT NULL,
			found_at_unix INTEGER NOT NULL,
			submitted INTEGER NOT NULL DEFAULT 0,
			submit_error TEXT
		)
	`); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS found_blocks_height_idx ON found_blocks (height)`); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func (s *FoundBlockStore) NewBlock(*Job)         {}
func (s *FoundBlockStore) UpdatedJob(*Job, bool) {}

func (s *FoundBlockStore) Share(rec ShareRecord, blockHex string) {
	if blockHex == "" || rec.BlockHash == "" {
		return
	}
	if err := s.enqueue(foundBlockWrite{rec: rec, blockHex: blockHex}); err != nil {
		logger.Error("found block journal dropped candidate", "hash", rec.BlockHash, "height", rec.Height, "error", err)
	}
}

// MarkSubmitted records the node's verdict for a journaled block.
func (s *FoundBlockStore) MarkSubmitted(hash string, submitErr error) {
	w := foundBlockWrite{rec: ShareRecord{BlockHash: hash}, update: true}
	if submitErr != nil {
		w.submitErr = submitErr.Error()
	}
	if err := s.enqueue(w); err != nil {
		logger.Warn("found block journal dropped submit result", "hash", hash, "error", err)
	}
}

func (s *FoundBlockStore) enqueue(w foundBlockWrite) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errStoreClosed
	}
	// Block candidates are rare; waiting for the writer is acceptable.
	s.ch <- w
	return nil
}

func (s *FoundBlockStore) run() {
	defer s.wg.Done()
	for w := range s.ch {
		var err error
		if w.update {
			err = s.markSubmitted(w.rec.BlockHash, w.submitErr)
		} else {
			err = s.insert(w.rec, w.blockHex)
		}
		if err != nil {
			logger.Error("found block journal write", "hash", w.rec.BlockHash, "error", err)
		}
	}
}

func (s *FoundBlockStore) insert(rec ShareRecord, blockHex string) error {
	recordJSON, err := fastJSONMarshal(rec)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO found_blocks (hash, height, job_id, worker, share_diff, block_hex, record_json, found_at_unix)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(hash) DO NOTHING
	`, rec.BlockHash, rec.Height, rec.JobID, rec.Worker, rec.ShareDiff, blockHex, string(recordJSON), rec.At.Unix())
	return err
}

func (s *FoundBlockStore) markSubmitted(hash, submitErr string) error {
	var errText sql.NullString
	if submitErr != "" {
		errText = sql.NullString{String: submitErr, Valid: true}
	}
	_, err := s.db.Exec(`UPDATE found_blocks SET submitted = 1, submit_error = ? WHERE hash = ?`, errText, hash)
	return err
}

// Recent returns up to limit journaled blocks, newest first.
func (s *FoundBlockStore) Recent(limit int) ([]FoundBlock, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.Query(`
		SELECT hash, height, job_id, worker, share_diff, block_hex, record_json, found_at_unix, submitted, submit_error
		FROM found_blocks
		ORDER BY found_at_unix DESC, height DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FoundBlock
	for rows.Next() {
		var (
			b          FoundBlock
			worker     sql.NullString
			recordJSON string
			foundAt    int64
			submitted  int
			submitErr  sql.NullString
		)
		if err := rows.Scan(&b.Hash, &b.Height, &b.JobID, &worker, &b.ShareDiff, &b.BlockHex, &recordJSON, &foundAt, &submitted, &submitErr); err != nil {
			return nil, err
		}
		if err := fastJSONUnmarshal([]byte(recordJSON), &b.Record); err != nil {
			return nil, err
		}
		b.Worker = worker.String
		b.FoundAt = time.Unix(foundAt, 0)
		b.Submitted = submitted != 0
		b.SubmitError = submitErr.String
		out = append(out, b)
	}
	return out, rows.Err()
}

// Close drains pending writes and closes the database.
func (s *FoundBlockStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.ch)
	s.mu.Unlock()
	s.wg.Wait()
	return s.db.Close()
}
