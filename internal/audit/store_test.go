package audit

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/issac1998/pos-relay/internal/transaction"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	root := t.TempDir()
	store, err := NewStore(Config{
		LogDir:          filepath.Join(root, "logs"),
		EventsDir:       filepath.Join(root, "events"),
		TransactionsDir: filepath.Join(root, "transactions"),
	})
	require.NoError(t, err)
	store.SetClock(func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) })
	t.Cleanup(func() { store.Close() })
	return store, root
}

func sampleTx() *transaction.Transaction {
	var summary transaction.SummaryMap
	summary.Set("SUBTOTAL", 2)
	summary.Set("TOTAL DUE", 2)
	return &transaction.Transaction{
		GUID:           "6f1c0e1a-0000-5000-8000-000000000000",
		Sequence:       "42",
		Store:          "1001",
		Terminal:       "3",
		Channel:        "COM3",
		TimestampLocal: "2024-03-01T22:30:00",
		TimestampUTC:   time.Date(2024, 3, 2, 3, 30, 0, 0, time.UTC),
		Classification: transaction.StandardSale,
		Items:          []transaction.Item{{Name: "Coffee", UnitPrice: 2, Quantity: 1}},
		Voids:          []transaction.Item{},
		Payments:       []transaction.Payment{{Amount: 2, TenderDescription: "CASH", IsCash: true}},
		Summary:        summary,
	}
}

func TestAppendRaw(t *testing.T) {
	store, root := newTestStore(t)

	require.NoError(t, store.AppendRaw("COM3", `{"CMD":"StartTransaction"}`))
	require.NoError(t, store.AppendRaw("COM3", `{"CMD":"EndTransaction"}`))

	data, err := os.ReadFile(filepath.Join(root, "logs", "pos_transactions_COM3.log"))
	require.NoError(t, err)
	assert.Equal(t,
		"2024-03-01T12:00:00Z {\"CMD\":\"StartTransaction\"}\n2024-03-01T12:00:00Z {\"CMD\":\"EndTransaction\"}\n",
		string(data))
}

func TestAppendRawConcurrent(t *testing.T) {
	store, _ := newTestStore(t)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				body := fmt.Sprintf(`{"w":%d,"i":%d,"pad":"%s"}`, w, i, strings.Repeat("x", 256))
				assert.NoError(t, store.AppendRaw("/dev/ttyS0", body))
			}
		}(w)
	}
	wg.Wait()

	data, err := os.ReadFile(store.RawLogPath("/dev/ttyS0"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	require.Len(t, lines, 400)
	for _, line := range lines {
		assert.True(t, strings.HasPrefix(line, "2024-03-01T12:00:00Z {\"w\":"))
		assert.True(t, strings.HasSuffix(line, "\"}"))
	}
}

func TestSnapshotIdempotent(t *testing.T) {
	store, root := newTestStore(t)
	tx := sampleTx()

	require.NoError(t, store.WriteSnapshot(tx))
	path := filepath.Join(root, "events", "42_"+tx.GUID+".json")
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	require.NoError(t, store.WriteSnapshot(sampleTx()))
	second, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(first, second))
	assert.Contains(t, string(first), "\n  \"guid\":")

	back, err := ReadSnapshot(path)
	require.NoError(t, err)
	assert.Equal(t, tx, back)
}

func TestArchive(t *testing.T) {
	store, root := newTestStore(t)
	tx := sampleTx()

	require.NoError(t, store.Archive(tx, true, 201, "created"))
	require.NoError(t, store.Archive(tx, false, 0, "dial tcp: connection refused\nretry later"))

	day := filepath.Join(root, "transactions", "2024", "03", "02")
	assert.FileExists(t, filepath.Join(day, "sent", tx.Key()+".json"))
	assert.FileExists(t, filepath.Join(day, "failed", tx.Key()+".json"))

	sent, err := os.ReadFile(filepath.Join(day, "sent", "sent.log"))
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01T12:00:00Z "+tx.Key()+" 201 created\n", string(sent))

	failed, err := os.ReadFile(filepath.Join(day, "failed", "failed.log"))
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01T12:00:00Z "+tx.Key()+" 0 dial tcp: connection refused retry later\n", string(failed))
}

func TestSnippet(t *testing.T) {
	long := strings.Repeat("a", 250)
	assert.Len(t, Snippet(long, 200), 200)
	assert.Equal(t, "a b c", Snippet("a\nb\r\nc", 200))
	assert.Equal(t, "", Snippet("", 200))
}

func TestArchiveKeepsNoFilesOpen(t *testing.T) {
	store, root := newTestStore(t)
	tx := sampleTx()
	next := sampleTx()
	next.TimestampUTC = tx.TimestampUTC.AddDate(0, 0, 1)

	require.NoError(t, store.AppendRaw("COM3", `{"CMD":"StartTransaction"}`))
	for _, day := range []*transaction.Transaction{tx, next} {
		require.NoError(t, store.Archive(day, true, 201, "created"))
		require.NoError(t, store.Archive(day, false, 500, "boom"))
	}

	store.mu.Lock()
	assert.Len(t, store.files, 1)
	_, ok := store.files[store.RawLogPath("COM3")]
	store.mu.Unlock()
	assert.True(t, ok)

	require.NoError(t, store.Archive(tx, true, 202, "accepted"))
	sent, err := os.ReadFile(filepath.Join(root, "transactions", "2024", "03", "02", "sent", "sent.log"))
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(sent), "\n"))
}
