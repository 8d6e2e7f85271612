package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	poserrors "github.com/issac1998/pos-relay/internal/errors"
	"github.com/issac1998/pos-relay/internal/transaction"
)

const (
	sentDir   = "sent"
	failedDir = "failed"
)

type Config struct {
	LogDir          string
	EventsDir       string
	TransactionsDir string
	SnippetLen      int
}

// Store owns the on-disk audit trail: raw channel logs, transaction
// snapshots, and the day-partitioned delivery archive. Appends to one
// file never interleave.
type Store struct {
	config Config
	now    func() time.Time

	mu    sync.Mutex
	files map[string]*appendFile

	// archive result logs are opened per line; there is one per day
	archiveMu sync.Mutex
}

type appendFile struct {
	mu   sync.Mutex
	file *os.File
}

// NewStore creates the audit directories
func NewStore(config Config) (*Store, error) {
	if config.SnippetLen <= 0 {
		config.SnippetLen = 200
	}
	for _, dir := range []string{config.LogDir, config.EventsDir, config.TransactionsDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, poserrors.Storage("create directory failed", err)
		}
	}
	return &Store{
		config: config,
		now:    time.Now,
		files:  make(map[string]*appendFile),
	}, nil
}

// SetClock replaces the time source for log line timestamps
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// RawLogPath is the raw log file for a channel
func (s *Store) RawLogPath(channel string) string {
	return filepath.Join(s.config.LogDir, fmt.Sprintf("pos_transactions_%s.log", sanitize(channel)))
}

// AppendRaw records a message body exactly as received
func (s *Store) AppendRaw(channel, body string) error {
	line := fmt.Sprintf("%s %s\n", s.now().UTC().Format(time.RFC3339Nano), body)
	return s.appendLine(s.RawLogPath(channel), line)
}

// SnapshotPath is where a transaction's snapshot is written
func (s *Store) SnapshotPath(tx *transaction.Transaction) string {
	return filepath.Join(s.config.EventsDir, tx.Key()+".json")
}

// WriteSnapshot persists tx as indented JSON. The same transaction
// always produces the same bytes.
func (s *Store) WriteSnapshot(tx *transaction.Transaction) error {
	data, err := encode(tx)
	if err != nil {
		return err
	}
	return writeFileAtomic(s.SnapshotPath(tx), data)
}

// ReadSnapshot loads a snapshot or archived transaction file
func ReadSnapshot(path string) (*transaction.Transaction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, poserrors.Storage("read snapshot failed", err)
	}
	var tx transaction.Transaction
	if err := json.Unmarshal(data, &tx); err != nil {
		return nil, poserrors.Storage(fmt.Sprintf("decode snapshot %s failed", path), err)
	}
	return &tx, nil
}

// ArchiveDir returns the sent or failed directory for tx's business date
func (s *Store) ArchiveDir(tx *transaction.Transaction, success bool) string {
	ts := tx.TimestampUTC.UTC()
	dest := failedDir
	if success {
		dest = sentDir
	}
	return filepath.Join(s.config.TransactionsDir,
		ts.Format("2006"), ts.Format("01"), ts.Format("02"), dest)
}

// Archive files tx under its business date and appends one result line
// to sent.log or failed.log.
func (s *Store) Archive(tx *transaction.Transaction, success bool, status int, body string) error {
	dir := s.ArchiveDir(tx, success)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return poserrors.Storage("create archive directory failed", err)
	}

	data, err := encode(tx)
	if err != nil {
		return err
	}
	if err := writeFileAtomic(filepath.Join(dir, tx.Key()+".json"), data); err != nil {
		return err
	}

	logName := failedDir + ".log"
	if success {
		logName = sentDir + ".log"
	}
	line := fmt.Sprintf("%s %s %d %s\n",
		s.now().UTC().Format(time.RFC3339Nano), tx.Key(), status, Snippet(body, s.config.SnippetLen))
	return s.appendOnce(filepath.Join(dir, logName), line)
}

// Snippet truncates a response body to n characters on one line
func Snippet(body string, n int) string {
	r := []rune(body)
	if len(r) > n {
		r = r[:n]
	}
	return strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(string(r))
}

// Close closes all open log files
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for path, af := range s.files {
		af.mu.Lock()
		if err := af.file.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %v", path, err))
		}
		af.mu.Unlock()
	}
	s.files = make(map[string]*appendFile)

	if len(errs) > 0 {
		return poserrors.Storage("close audit files failed", fmt.Errorf("%v", errs))
	}
	return nil
}

func (s *Store) appendLine(path, line string) error {
	af, err := s.open(path)
	if err != nil {
		return err
	}

	af.mu.Lock()
	defer af.mu.Unlock()
	if _, err := af.file.WriteString(line); err != nil {
		return poserrors.Storage(fmt.Sprintf("append %s failed", path), err)
	}
	return nil
}

// appendOnce writes one line without keeping the file open
func (s *Store) appendOnce(path, line string) error {
	s.archiveMu.Lock()
	defer s.archiveMu.Unlock()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return poserrors.Storage(fmt.Sprintf("open %s failed", path), err)
	}
	if _, err := f.WriteString(line); err != nil {
		f.Close()
		return poserrors.Storage(fmt.Sprintf("append %s failed", path), err)
	}
	if err := f.Close(); err != nil {
		return poserrors.Storage(fmt.Sprintf("close %s failed", path), err)
	}
	return nil
}

func (s *Store) open(path string) (*appendFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if af, ok := s.files[path]; ok {
		return af, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, poserrors.Storage("create directory failed", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, poserrors.Storage(fmt.Sprintf("open %s failed", path), err)
	}
	af := &appendFile{file: f}
	s.files[path] = af
	return af, nil
}

func encode(tx *transaction.Transaction) ([]byte, error) {
	data, err := json.MarshalIndent(tx, "", "  ")
	if err != nil {
		return nil, poserrors.Storage("encode transaction failed", err)
	}
	return append(data, '\n'), nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return poserrors.Storage(fmt.Sprintf("write %s failed", path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return poserrors.Storage(fmt.Sprintf("rename %s failed", path), err)
	}
	return nil
}

// sanitize keeps device paths like /dev/ttyS0 from creating directories
func sanitize(channel string) string {
	return strings.NewReplacer("/", "_", "\\", "_", ":", "_").Replace(channel)
}
