package ledger

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/issac1998/pos-relay/internal/compression"
	poserrors "github.com/issac1998/pos-relay/internal/errors"
)

const keyPrefix = "dispatch/"

// Record is the delivery history of one transaction
type Record struct {
	GUID           string    `json:"guid"`
	Sequence       string    `json:"sequence"`
	Classification string    `json:"classification"`
	Endpoint       string    `json:"endpoint"`
	Attempts       int       `json:"attempts"`
	LastStatus     int       `json:"last_status"`
	Success        bool      `json:"success"`
	FirstAttempt   time.Time `json:"first_attempt"`
	LastAttempt    time.Time `json:"last_attempt"`
	LastSnippet    string    `json:"last_snippet"`
	// Payload is the last rendered request body, compressed
	Payload []byte `json:"payload,omitempty"`
}

// DecodePayload returns the uncompressed request body
func (r *Record) DecodePayload() ([]byte, error) {
	if len(r.Payload) == 0 {
		return nil, nil
	}
	return compression.DecompressMessage(r.Payload)
}

// Attempt is one delivery outcome to be folded into a Record
type Attempt struct {
	GUID           string
	Sequence       string
	Classification string
	Endpoint       string
	Status         int
	Success        bool
	Snippet        string
	Payload        []byte
	At             time.Time
}

// Filter selects records in List
type Filter int

const (
	All Filter = iota
	FailedOnly
	SentOnly
)

// Ledger indexes dispatch attempts by transaction GUID in PebbleDB
type Ledger struct {
	db     *pebble.DB
	dbPath string
	codec  compression.CompressionType

	// serializes read-modify-write in Record
	mu sync.Mutex
}

// Open opens or creates the ledger at dbPath
func Open(dbPath string, codec compression.CompressionType) (*Ledger, error) {
	opts := &pebble.Options{
		Cache:        pebble.NewCache(8 << 20),
		MemTableSize: 4 << 20,
	}

	db, err := pebble.Open(dbPath, opts)
	if err != nil {
		return nil, poserrors.Storage(fmt.Sprintf("failed to open ledger at %s", dbPath), err)
	}

	return &Ledger{db: db, dbPath: dbPath, codec: codec}, nil
}

// Record folds an attempt into the GUID's record and returns the result
func (l *Ledger) Record(a Attempt) (*Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, err := l.get(a.GUID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		rec = &Record{GUID: a.GUID, FirstAttempt: a.At}
	}

	rec.Sequence = a.Sequence
	rec.Classification = a.Classification
	rec.Endpoint = a.Endpoint
	rec.Attempts++
	rec.LastStatus = a.Status
	rec.Success = a.Success
	rec.LastAttempt = a.At
	rec.LastSnippet = a.Snippet

	if a.Payload != nil {
		packed, err := compression.CompressMessage(a.Payload, l.codec)
		if err != nil {
			return nil, poserrors.Storage("failed to compress payload", err)
		}
		rec.Payload = packed
	}

	value, err := json.Marshal(rec)
	if err != nil {
		return nil, poserrors.Storage("failed to marshal ledger record", err)
	}
	if err := l.db.Set(key(a.GUID), value, pebble.Sync); err != nil {
		return nil, poserrors.Storage("failed to write ledger record", err)
	}
	return rec, nil
}

// Get returns the record for guid, or nil when none exists
func (l *Ledger) Get(guid string) (*Record, error) {
	return l.get(guid)
}

func (l *Ledger) get(guid string) (*Record, error) {
	value, closer, err := l.db.Get(key(guid))
	if err != nil {
		if err == pebble.ErrNotFound {
			return nil, nil
		}
		return nil, poserrors.Storage("failed to read ledger record", err)
	}
	defer closer.Close()

	var rec Record
	if err := json.Unmarshal(value, &rec); err != nil {
		return nil, poserrors.Storage("failed to unmarshal ledger record", err)
	}
	return &rec, nil
}

// List returns records matching filter in key order. Payloads are
// omitted; use Get for a full record.
func (l *Ledger) List(filter Filter) ([]*Record, error) {
	iter := l.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyPrefix),
		UpperBound: prefixEnd(keyPrefix),
	})
	defer iter.Close()

	var out []*Record
	for iter.First(); iter.Valid(); iter.Next() {
		var rec Record
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			// Skip invalid records
			continue
		}
		if filter == FailedOnly && rec.Success || filter == SentOnly && !rec.Success {
			continue
		}
		rec.Payload = nil
		out = append(out, &rec)
	}

	if err := iter.Error(); err != nil {
		return nil, poserrors.Storage("ledger iterator error", err)
	}
	return out, nil
}

// Close closes the PebbleDB database
func (l *Ledger) Close() error {
	if l.db != nil {
		return l.db.Close()
	}
	return nil
}

// GetStats returns database statistics
func (l *Ledger) GetStats() map[string]any {
	metrics := l.db.Metrics()
	return map[string]any{
		"db_path":       l.dbPath,
		"codec":         l.codec.String(),
		"memtable_size": metrics.MemTable.Size,
		"flush_count":   metrics.Flush.Count,
	}
}

func key(guid string) []byte {
	return []byte(keyPrefix + guid)
}

func prefixEnd(prefix string) []byte {
	end := []byte(prefix)
	end[len(end)-1]++
	return end
}
