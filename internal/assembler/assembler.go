package assembler

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/issac1998/pos-relay/internal/logging"
	"github.com/issac1998/pos-relay/internal/protocol"
	"github.com/issac1998/pos-relay/internal/transaction"
)

// State is the per-channel assembly state
type State int

const (
	Idle State = iota
	Open
)

func (s State) String() string {
	if s == Open {
		return "open"
	}
	return "idle"
}

// SnapshotWriter persists a closed transaction before it is queued
type SnapshotWriter interface {
	WriteSnapshot(tx *transaction.Transaction) error
}

type Config struct {
	StoreID             string
	ForceStoreID        bool
	LocationDescription string
	Location            *time.Location
	// Terminals maps channel name to the terminal used when records carry none
	Terminals map[string]string
}

// Assembler folds per-channel record streams into transactions. Each
// channel has at most one open buffer.
type Assembler struct {
	config    Config
	snapshots SnapshotWriter
	logger    *logging.Logger
	now       func() time.Time

	mu      sync.Mutex
	buffers map[string]*buffer
	seen    map[string]bool
	closed  int
}

type buffer struct {
	meta           map[string]string
	items          []transaction.Item
	voids          []transaction.Item
	payments       []transaction.Payment
	awaitingChange bool
	operation      string
}

// New creates an assembler. snapshots may be nil.
func New(config Config, snapshots SnapshotWriter, logger *logging.Logger) *Assembler {
	if config.Location == nil {
		config.Location = time.UTC
	}
	return &Assembler{
		config:    config,
		snapshots: snapshots,
		logger:    logger.WithComponent("assembler"),
		now:       time.Now,
		buffers:   make(map[string]*buffer),
		seen:      make(map[string]bool),
	}
}

// SetClock replaces the time source used for missing timestamps
func (a *Assembler) SetClock(now func() time.Time) {
	a.now = now
}

// State reports whether a channel has an open buffer
func (a *Assembler) State(channel string) State {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.buffers[channel] != nil {
		return Open
	}
	return Idle
}

// Closed returns how many transactions have been emitted
func (a *Assembler) Closed() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}

// Channels reports the state of every channel seen so far
func (a *Assembler) Channels() map[string]State {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]State, len(a.seen))
	for ch := range a.seen {
		out[ch] = Idle
		if a.buffers[ch] != nil {
			out[ch] = Open
		}
	}
	return out
}

// Run consumes envelopes until in is closed or ctx is done, forwarding
// every closed transaction to out.
func (a *Assembler) Run(ctx context.Context, in <-chan protocol.Envelope, out chan<- *transaction.Transaction) {
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-in:
			if !ok {
				return
			}
			tx := a.Handle(env)
			if tx == nil {
				continue
			}
			select {
			case out <- tx:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Handle applies one record and returns the transaction it closed, if any
func (a *Assembler) Handle(env protocol.Envelope) *transaction.Transaction {
	a.mu.Lock()
	defer a.mu.Unlock()

	log := a.logger.WithChannel(env.Channel)
	a.seen[env.Channel] = true

	switch rec := env.Record.(type) {
	case protocol.CashCommand:
		return a.emit(a.cashCommand(env.Channel, rec))

	case protocol.CycleStart:
		if a.buffers[env.Channel] != nil {
			log.Warn("Discarding unfinished transaction buffer")
		}
		a.buffers[env.Channel] = &buffer{
			meta:      make(map[string]string),
			operation: rec.Operation,
		}
		return nil
	}

	buf := a.buffers[env.Channel]
	if buf == nil {
		if env.Record != nil {
			log.DroppedRecord(env.Record.Kind().String(), "no open transaction")
		}
		return nil
	}

	switch rec := env.Record.(type) {
	case protocol.Meta:
		for k, v := range rec.Fields {
			buf.meta[k] = v
		}
		if op := rec.Fields[protocol.MetaOperation]; op != "" {
			buf.operation = op
		}

	case protocol.CartChange:
		for _, line := range rec.Lines {
			item := transaction.Item{
				Name:      line.ItemName,
				UnitPrice: line.Price,
				Quantity:  line.Quantity,
				IsVoid:    line.IsVoid(),
			}
			if item.IsVoid {
				buf.voids = append(buf.voids, item)
			} else {
				buf.items = append(buf.items, item)
			}
		}

	case protocol.PaymentSummary:
		buf.payments = buf.payments[:0:0]
		for _, line := range rec.Lines {
			if !strings.HasPrefix(line.Details, "$") {
				continue
			}
			isCash := strings.EqualFold(strings.TrimSpace(line.Description), "cash")
			buf.payments = append(buf.payments, transaction.Payment{
				Amount:            protocol.ParseMoney(line.Details),
				TenderDescription: line.Description,
				IsCash:            isCash,
			})
			if isCash {
				buf.awaitingChange = true
			}
		}

	case protocol.TransactionSummary:
		var summary transaction.SummaryMap
		for _, line := range rec.Lines {
			key := strings.ToUpper(strings.TrimSpace(line.Description))
			summary.Set(key, protocol.ParseMoney(line.Details))
		}
		delete(a.buffers, env.Channel)
		return a.emit(a.close(env.Channel, buf, summary, rec.Timestamp))

	case protocol.CycleEnd:
		delete(a.buffers, env.Channel)
		return a.emit(a.close(env.Channel, buf, nil, ""))
	}

	return nil
}

func (a *Assembler) emit(tx *transaction.Transaction) *transaction.Transaction {
	a.closed++
	log := a.logger.WithChannel(tx.Channel).WithTransaction(tx.GUID, tx.Sequence)
	if a.snapshots != nil {
		if err := a.snapshots.WriteSnapshot(tx); err != nil {
			log.Failure("Failed to persist transaction snapshot", err)
		}
	}
	log.Info("Transaction assembled",
		"classification", tx.Classification,
		"items", len(tx.Items),
		"voids", len(tx.Voids),
		"payments", len(tx.Payments))
	return tx
}

func (a *Assembler) cashCommand(channel string, cmd protocol.CashCommand) *transaction.Transaction {
	terminal := firstNonEmpty(cmd.Terminal, a.terminal(channel))
	sequence := firstNonEmpty(cmd.Sequence, "0")
	tsUTC := transaction.ToUTC(cmd.DateTime, a.config.Location, a.now)
	store := a.config.StoreID

	return &transaction.Transaction{
		GUID:                transaction.GUID(store, terminal, sequence, tsUTC),
		Sequence:            sequence,
		Store:               store,
		LocationDescription: a.config.LocationDescription,
		Terminal:            terminal,
		Channel:             channel,
		TimestampLocal:      firstNonEmpty(cmd.DateTime, transaction.LocalString(tsUTC, a.config.Location)),
		TimestampUTC:        tsUTC,
		OperatorID:          cmd.Operator,
		OperatorName:        firstNonEmpty(cmd.OperatorName, cmd.Operator),
		Classification:      transaction.CashOperation,
		Operation:           strings.ToLower(cmd.Name),
		Amount:              cmd.Amount,
		Items:               []transaction.Item{},
		Voids:               []transaction.Item{},
		Payments:            []transaction.Payment{},
		Summary:             transaction.SummaryMap{},
	}
}

func (a *Assembler) close(channel string, buf *buffer, summary transaction.SummaryMap, recordTimestamp string) *transaction.Transaction {
	payments := make([]transaction.Payment, len(buf.payments))
	copy(payments, buf.payments)

	if change, ok := summary.Get(transaction.KeyChange); ok && buf.awaitingChange {
		for i := range payments {
			if payments[i].IsCash {
				v := change
				payments[i].ChangeAmount = &v
				break
			}
		}
		buf.awaitingChange = false
	}

	meta := buf.meta
	tsLocal := firstNonEmpty(meta[protocol.MetaTimeStamp], recordTimestamp)
	tsUTC := transaction.ToUTC(tsLocal, a.config.Location, a.now)
	if tsLocal == "" {
		tsLocal = transaction.LocalString(tsUTC, a.config.Location)
	}

	terminal := firstNonEmpty(meta[protocol.MetaTerminalID], a.terminal(channel))
	sequence := firstNonEmpty(meta[protocol.MetaSequenceNumber], "0")
	store := firstNonEmpty(meta[protocol.MetaStoreID], a.config.StoreID)
	if a.config.ForceStoreID {
		store = a.config.StoreID
	}

	items := append([]transaction.Item{}, buf.items...)
	voids := append([]transaction.Item{}, buf.voids...)
	if summary == nil {
		summary = transaction.SummaryMap{}
	}

	class := transaction.Classify(buf.operation, meta[protocol.MetaTransactionType], items)

	return &transaction.Transaction{
		GUID:                transaction.GUID(store, terminal, sequence, tsUTC),
		Sequence:            sequence,
		Store:               store,
		LocationDescription: a.config.LocationDescription,
		Terminal:            terminal,
		Channel:             channel,
		TimestampLocal:      tsLocal,
		TimestampUTC:        tsUTC,
		OperatorID:          meta[protocol.MetaOperatorID],
		OperatorName:        meta[protocol.MetaOperatorName],
		Classification:      class,
		Operation:           strings.ToLower(buf.operation),
		Amount:              cycleAmount(summary, payments),
		Items:               items,
		Voids:               voids,
		Payments:            payments,
		Summary:             summary,
	}
}

// cycleAmount is the drawer amount for cash operations that arrive as
// full cycles: TOTAL DUE when present, otherwise the tendered total.
func cycleAmount(summary transaction.SummaryMap, payments []transaction.Payment) float64 {
	if v, ok := summary.Get(transaction.KeyTotalDue); ok {
		return v
	}
	var total float64
	for _, p := range payments {
		total += p.Amount
	}
	return total
}

func (a *Assembler) terminal(channel string) string {
	if t := a.config.Terminals[channel]; t != "" {
		return t
	}
	if channel == "" {
		return "0"
	}
	return channel[len(channel)-1:]
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
