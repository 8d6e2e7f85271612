package relay

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/issac1998/pos-relay/internal/admin"
	"github.com/issac1998/pos-relay/internal/assembler"
	"github.com/issac1998/pos-relay/internal/audit"
	"github.com/issac1998/pos-relay/internal/channel"
	"github.com/issac1998/pos-relay/internal/config"
	"github.com/issac1998/pos-relay/internal/dispatch"
	"github.com/issac1998/pos-relay/internal/ledger"
	"github.com/issac1998/pos-relay/internal/logging"
	"github.com/issac1998/pos-relay/internal/protocol"
	"github.com/issac1998/pos-relay/internal/token"
	"github.com/issac1998/pos-relay/internal/transaction"
)

type Options struct {
	// DryRun assembles and snapshots transactions without posting them
	DryRun bool
	// HTTPClient overrides the client used for token and API calls
	HTTPClient *http.Client
	// Sources overrides the configured device of the named channels
	Sources map[string]channel.Source
}

// Stats summarizes one run
type Stats struct {
	Assembled int
	Sent      int64
	Failed    int64
}

// Relay wires channel readers, the assembler and the dispatcher
// together and owns their lifecycle.
type Relay struct {
	config  *config.Config
	options Options
	logger  *logging.Logger

	audit      *audit.Store
	ledger     *ledger.Ledger
	dispatcher *dispatch.Dispatcher
	assembler  *assembler.Assembler
	admin      *admin.Server
	readers    []*channel.Reader

	envelopes chan protocol.Envelope
	queue     chan *transaction.Transaction

	readerCtx    context.Context
	cancelReader context.CancelFunc
	readerWG     sync.WaitGroup
	assemblerWG  sync.WaitGroup
	drainWG      sync.WaitGroup
	readersDone  chan struct{}
	stopOnce     sync.Once
}

func New(cfg *config.Config, options Options, logger *logging.Logger) *Relay {
	return &Relay{
		config:  cfg,
		options: options,
		logger:  logger.WithComponent("relay"),
	}
}

// Start brings up every component. On error, components already
// started are stopped and the relay cannot be restarted.
func (r *Relay) Start(ctx context.Context) (err error) {
	r.logger.StartupInfo("relay", map[string]any{
		"channels": len(r.config.Channels),
		"store":    r.config.Store.ID,
		"dry_run":  r.options.DryRun,
	})

	defer func() {
		if err != nil {
			r.Stop()
		}
	}()

	// 1. Validate configuration
	if err := r.config.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	if len(r.config.Channels) == 0 {
		return fmt.Errorf("config validation failed: no channels configured")
	}
	if !r.options.DryRun {
		if err := r.config.ValidateDelivery(); err != nil {
			return fmt.Errorf("config validation failed: %w", err)
		}
	}

	// 2. Open the audit store and the ledger
	if err := r.openBackends(); err != nil {
		return err
	}

	// 3. Start the dispatch workers
	r.queue = make(chan *transaction.Transaction, r.config.Dispatch.QueueSize)
	if r.options.DryRun {
		r.drainWG.Add(1)
		go r.drain()
	} else {
		r.dispatcher = r.newDispatcher()
		r.dispatcher.Start(ctx, r.queue)
	}

	// 4. Start the assembler
	r.envelopes = make(chan protocol.Envelope, 256)
	r.assembler = assembler.New(r.assemblerConfig(), r.audit, r.logger)
	r.assemblerWG.Add(1)
	go func() {
		defer r.assemblerWG.Done()
		// Drains until envelopes is closed so no record is lost on shutdown
		r.assembler.Run(context.WithoutCancel(ctx), r.envelopes, r.queue)
	}()

	// 5. Start the admin API
	if r.config.Admin.Enabled {
		r.admin = admin.NewServer(r.config.Admin.Addr, admin.NewHandler(r.adminStore(), r.channelStates), r.logger)
		if err := r.admin.Start(); err != nil {
			return fmt.Errorf("admin server start failed: %w", err)
		}
	}

	// 6. Start one reader per channel
	if err := r.startReaders(ctx); err != nil {
		return fmt.Errorf("channel start failed: %w", err)
	}

	r.logger.Info("Relay started", "channels", len(r.readers))
	return nil
}

// Done is closed once every reader has returned, which only happens on
// its own for finite sources
func (r *Relay) Done() <-chan struct{} {
	return r.readersDone
}

// Stop shuts down in pipeline order: readers, then the assembler, then
// the dispatch queue, and finally storage. Queued transactions are
// delivered before Stop returns.
func (r *Relay) Stop() Stats {
	var stats Stats
	r.stopOnce.Do(func() {
		start := time.Now()
		r.logger.ShutdownInfo("relay", nil)

		if r.cancelReader != nil {
			r.cancelReader()
			r.readerWG.Wait()
		}
		if r.envelopes != nil {
			close(r.envelopes)
			r.assemblerWG.Wait()
		}
		if r.queue != nil {
			close(r.queue)
			if r.dispatcher != nil {
				r.dispatcher.Wait()
			}
			r.drainWG.Wait()
		}

		if r.admin != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := r.admin.Shutdown(ctx); err != nil {
				r.logger.Failure("Admin server shutdown failed", err)
			}
			cancel()
		}

		stats = r.stats()
		r.releaseBackends()
		r.logger.Performance("relay_run", time.Since(start), map[string]any{
			"assembled": stats.Assembled,
			"sent":      stats.Sent,
			"failed":    stats.Failed,
		})
	})
	return stats
}

// Run starts the relay and blocks until ctx is done or every channel
// source is exhausted
func (r *Relay) Run(ctx context.Context) (Stats, error) {
	if err := r.Start(ctx); err != nil {
		return Stats{}, err
	}
	select {
	case <-ctx.Done():
	case <-r.Done():
	}
	return r.Stop(), nil
}

func (r *Relay) openBackends() error {
	store, err := audit.NewStore(audit.Config{
		LogDir:          r.config.Audit.LogDir,
		EventsDir:       r.config.Audit.EventsDir,
		TransactionsDir: r.config.Audit.TransactionsDir,
		SnippetLen:      r.config.Audit.SnippetLen,
	})
	if err != nil {
		return fmt.Errorf("audit store init failed: %w", err)
	}
	r.audit = store

	if r.config.Ledger.Enabled {
		l, err := ledger.Open(r.config.Ledger.Path, r.config.Ledger.Compression)
		if err != nil {
			return fmt.Errorf("ledger init failed: %w", err)
		}
		r.ledger = l
	}
	return nil
}

func (r *Relay) releaseBackends() {
	if r.ledger != nil {
		if err := r.ledger.Close(); err != nil {
			r.logger.Failure("Failed to close ledger", err)
		}
		r.ledger = nil
	}
	if r.audit != nil {
		if err := r.audit.Close(); err != nil {
			r.logger.Failure("Failed to close audit store", err)
		}
		r.audit = nil
	}
}

func (r *Relay) newDispatcher() *dispatch.Dispatcher {
	api := r.config.API
	client := r.options.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: api.Timeout}
	}

	tokens := token.NewCache(token.Config{
		TokenURL:     api.TokenURL,
		ClientID:     api.ClientID,
		ClientSecret: api.ClientSecret,
		RefreshSkew:  api.TokenRefreshSkew,
	}, client)

	// A nil *ledger.Ledger must not become a non-nil Recorder
	var recorder dispatch.Recorder
	if r.ledger != nil {
		recorder = r.ledger
	}

	return dispatch.NewDispatcher(dispatch.Config{
		Endpoints: dispatch.Endpoints{
			CashOperations: api.CashOperationsURL,
			Transactions:   api.TransactionsURL,
			Refunds:        api.RefundsURL,
		},
		PartnerHeader: api.PartnerHeader,
		PartnerID:     api.ClientID,
		Workers:       r.config.Dispatch.Workers,
		SnippetLen:    r.config.Audit.SnippetLen,
	}, client, tokens, r.audit, recorder, r.logger)
}

func (r *Relay) assemblerConfig() assembler.Config {
	terminals := make(map[string]string, len(r.config.Channels))
	for _, ch := range r.config.Channels {
		terminals[ch.Name] = ch.Terminal
	}
	return assembler.Config{
		StoreID:             r.config.Store.ID,
		ForceStoreID:        r.config.Store.ForceID,
		LocationDescription: r.config.Store.LocationDescription,
		Location:            r.config.Store.Location(),
		Terminals:           terminals,
	}
}

func (r *Relay) startReaders(ctx context.Context) error {
	serialOpts := channel.SerialOptions{
		BaudRate:    r.config.Serial.BaudRate,
		DataBits:    r.config.Serial.DataBits,
		Parity:      r.config.Serial.Parity,
		StopBits:    r.config.Serial.StopBits,
		ReadTimeout: r.config.Serial.ReadTimeout,
	}

	for _, ch := range r.config.Channels {
		source, ok := r.options.Sources[ch.Name]
		if !ok {
			var err error
			source, err = channel.NewSource(ch.Device, serialOpts)
			if err != nil {
				return fmt.Errorf("channel %s: %w", ch.Name, err)
			}
		}
		r.readers = append(r.readers, channel.NewReader(channel.ReaderConfig{
			Name:             ch.Name,
			ReconnectBackoff: r.config.Reader.ReconnectBackoff,
			MaxMessageSize:   r.config.Reader.MaxMessageSize,
		}, source, r.audit, r.logger))
	}

	r.readerCtx, r.cancelReader = context.WithCancel(ctx)
	r.readersDone = make(chan struct{})
	for _, reader := range r.readers {
		r.readerWG.Add(1)
		go func(reader *channel.Reader) {
			defer r.readerWG.Done()
			if err := reader.Run(r.readerCtx, r.envelopes); err != nil {
				r.logger.Failure("Channel reader stopped", err)
			}
		}(reader)
	}
	go func() {
		r.readerWG.Wait()
		close(r.readersDone)
	}()
	return nil
}

func (r *Relay) drain() {
	defer r.drainWG.Done()
	for tx := range r.queue {
		r.logger.WithTransaction(tx.GUID, tx.Sequence).Info("Dry run, transaction not sent",
			"classification", tx.Classification, "snapshot", r.audit.SnapshotPath(tx))
	}
}

func (r *Relay) stats() Stats {
	var stats Stats
	if r.assembler != nil {
		stats.Assembled = r.assembler.Closed()
	}
	if r.dispatcher != nil {
		stats.Sent, stats.Failed = r.dispatcher.Stats()
	}
	return stats
}

func (r *Relay) channelStates() map[string]string {
	out := make(map[string]string, len(r.config.Channels))
	for _, ch := range r.config.Channels {
		out[ch.Name] = assembler.Idle.String()
	}
	for ch, state := range r.assembler.Channels() {
		out[ch] = state.String()
	}
	return out
}

// adminStore avoids handing the admin handler a typed nil
func (r *Relay) adminStore() admin.Store {
	if r.ledger == nil {
		return nil
	}
	return r.ledger
}
