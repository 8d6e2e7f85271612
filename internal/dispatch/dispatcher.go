package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/issac1998/pos-relay/internal/audit"
	poserrors "github.com/issac1998/pos-relay/internal/errors"
	"github.com/issac1998/pos-relay/internal/ledger"
	"github.com/issac1998/pos-relay/internal/logging"
	"github.com/issac1998/pos-relay/internal/render"
	"github.com/issac1998/pos-relay/internal/token"
	"github.com/issac1998/pos-relay/internal/transaction"
)

const maxResponseBody = 64 << 10

// Result is the outcome of one delivery attempt. StatusCode 0 means the
// request never produced an HTTP response; Body then holds the error.
type Result struct {
	StatusCode int
	Body       string
	Success    bool
	Timestamp  time.Time
	Endpoint   string
}

// Archiver records every outcome against its transaction
type Archiver interface {
	Archive(tx *transaction.Transaction, success bool, status int, body string) error
}

// Recorder indexes outcomes by GUID
type Recorder interface {
	Record(a ledger.Attempt) (*ledger.Record, error)
}

type Config struct {
	Endpoints     Endpoints
	PartnerHeader string
	PartnerID     string
	Workers       int
	SnippetLen    int
}

// Dispatcher posts rendered transactions to the partner API. Attempts
// are not retried; every outcome is archived.
type Dispatcher struct {
	config   Config
	client   *http.Client
	tokens   token.Source
	archive  Archiver
	recorder Recorder
	logger   *logging.Logger
	now      func() time.Time

	wg     sync.WaitGroup
	sent   atomic.Int64
	failed atomic.Int64
}

// NewDispatcher creates a dispatcher. archive and recorder may be nil.
func NewDispatcher(config Config, client *http.Client, tokens token.Source, archive Archiver, recorder Recorder, logger *logging.Logger) *Dispatcher {
	if config.Workers < 1 {
		config.Workers = 1
	}
	if config.SnippetLen <= 0 {
		config.SnippetLen = 200
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Dispatcher{
		config:   config,
		client:   client,
		tokens:   tokens,
		archive:  archive,
		recorder: recorder,
		logger:   logger.WithComponent("dispatcher"),
		now:      time.Now,
	}
}

// Start launches the worker pool. Workers exit when queue is closed.
// In-flight requests are not cut short by ctx cancellation so the queue
// can drain on shutdown.
func (d *Dispatcher) Start(ctx context.Context, queue <-chan *transaction.Transaction) {
	reqCtx := context.WithoutCancel(ctx)
	for i := 0; i < d.config.Workers; i++ {
		d.wg.Add(1)
		go func(worker int) {
			defer d.wg.Done()
			for tx := range queue {
				d.Dispatch(reqCtx, tx)
			}
			d.logger.Debug("Dispatch worker stopped", "worker", worker)
		}(i)
	}
}

// Wait blocks until all workers have exited
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Stats returns the number of successful and failed deliveries so far
func (d *Dispatcher) Stats() (sent, failed int64) {
	return d.sent.Load(), d.failed.Load()
}

// Dispatch delivers one transaction and records the outcome
func (d *Dispatcher) Dispatch(ctx context.Context, tx *transaction.Transaction) Result {
	start := d.now()
	log := d.logger.WithTransaction(tx.GUID, tx.Sequence)

	var payloadBody []byte
	result := d.deliver(ctx, tx, &payloadBody)
	result.Timestamp = d.now()
	if result.Success {
		d.sent.Add(1)
	} else {
		d.failed.Add(1)
	}

	if d.archive != nil {
		if err := d.archive.Archive(tx, result.Success, result.StatusCode, result.Body); err != nil {
			log.Failure("Failed to archive dispatch result", err)
		}
	}
	if d.recorder != nil {
		_, err := d.recorder.Record(ledger.Attempt{
			GUID:           tx.GUID,
			Sequence:       tx.Sequence,
			Classification: string(tx.Classification),
			Endpoint:       result.Endpoint,
			Status:         result.StatusCode,
			Success:        result.Success,
			Snippet:        audit.Snippet(result.Body, d.config.SnippetLen),
			Payload:        payloadBody,
			At:             result.Timestamp,
		})
		if err != nil {
			log.Failure("Failed to record dispatch in ledger", err)
		}
	}

	label := string(tx.Classification)
	if a := render.Annotate(tx); a != "" {
		label = fmt.Sprintf("%s/%s", label, a)
	}
	log.DispatchOutcome(label, result.Endpoint, result.StatusCode, result.Success, d.now().Sub(start))
	if !result.Success {
		log.Debug("Dispatch response", "body", audit.Snippet(result.Body, d.config.SnippetLen))
	}
	return result
}

func (d *Dispatcher) deliver(ctx context.Context, tx *transaction.Transaction, payloadBody *[]byte) Result {
	payload, err := render.Render(tx)
	if err != nil {
		return Result{Body: err.Error()}
	}

	endpoint, err := d.config.Endpoints.For(tx.Classification)
	if err != nil {
		return Result{Body: err.Error()}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Result{Body: err.Error(), Endpoint: endpoint}
	}
	*payloadBody = body

	bearer, err := d.tokens.Token(ctx)
	if err != nil {
		return Result{Body: err.Error(), Endpoint: endpoint}
	}

	status, respBody, err := d.post(ctx, endpoint, bearer, body)
	if err != nil {
		return Result{Body: err.Error(), Endpoint: endpoint}
	}
	return Result{
		StatusCode: status,
		Body:       respBody,
		Success:    status >= 200 && status < 300,
		Endpoint:   endpoint,
	}
}

func (d *Dispatcher) post(ctx context.Context, endpoint, bearer string, body []byte) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, "", poserrors.Delivery("build request failed", err)
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Content-Type", "application/json")
	if d.config.PartnerHeader != "" {
		req.Header.Set(d.config.PartnerHeader, d.config.PartnerID)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, "", poserrors.Delivery("post failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return 0, "", poserrors.Delivery("read response failed", err)
	}
	return resp.StatusCode, string(respBody), nil
}
