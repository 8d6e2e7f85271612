package channel

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"
	"unicode/utf8"

	poserrors "github.com/issac1998/pos-relay/internal/errors"
	"github.com/issac1998/pos-relay/internal/logging"
	"github.com/issac1998/pos-relay/internal/protocol"
)

// RawLogger receives every message body before it is parsed
type RawLogger interface {
	AppendRaw(channel, body string) error
}

type ReaderConfig struct {
	Name             string
	ReconnectBackoff time.Duration
	MaxMessageSize   int
}

// Reader frames one channel's stream and forwards parsed records
type Reader struct {
	config ReaderConfig
	source Source
	raw    RawLogger
	logger *logging.Logger
	now    func() time.Time
}

// NewReader creates a reader. raw may be nil.
func NewReader(config ReaderConfig, source Source, raw RawLogger, logger *logging.Logger) *Reader {
	if config.ReconnectBackoff <= 0 {
		config.ReconnectBackoff = 5 * time.Second
	}
	return &Reader{
		config: config,
		source: source,
		raw:    raw,
		logger: logger.WithComponent("reader").WithChannel(config.Name),
		now:    time.Now,
	}
}

// Run reads until ctx is done. Transport failures close the channel and
// reopen it after the backoff, indefinitely. A finite source returns nil
// at EOF.
func (r *Reader) Run(ctx context.Context, out chan<- protocol.Envelope) error {
	for {
		err := r.session(ctx, out)
		if ctx.Err() != nil {
			return nil
		}
		if r.source.Finite() {
			if errors.Is(err, io.ErrUnexpectedEOF) {
				r.logger.Warn("Capture ends inside a frame", "source", r.source.String())
				return nil
			}
			if err == nil || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		r.logger.Failure("Channel failed, reopening after backoff", err,
			"source", r.source.String(),
			"backoff", r.config.ReconnectBackoff.String())

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(r.config.ReconnectBackoff):
		}
	}
}

func (r *Reader) session(ctx context.Context, out chan<- protocol.Envelope) error {
	rc, err := r.source.Open(ctx)
	if err != nil {
		return err
	}

	// Closing the stream is the only way to unblock a pending read
	var once sync.Once
	closeStream := func() { once.Do(func() { rc.Close() }) }
	defer closeStream()
	stop := context.AfterFunc(ctx, closeStream)
	defer stop()

	r.logger.Info("Channel open", "source", r.source.String())

	frames := protocol.NewFrameReader(rc, r.config.MaxMessageSize)
	for {
		body, err := frames.Next()
		if err != nil {
			var tooLarge *protocol.FrameTooLargeError
			if errors.As(err, &tooLarge) {
				r.logger.DroppedRecord("frame", tooLarge.Error())
				continue
			}
			if err == io.EOF && !r.source.Finite() {
				return poserrors.Transport("channel closed by peer", err)
			}
			return err
		}

		if r.raw != nil {
			if err := r.raw.AppendRaw(r.config.Name, body); err != nil {
				r.logger.Failure("Failed to write raw log", err)
			}
		}

		rec, err := protocol.Parse(body)
		if err != nil {
			r.logger.DroppedRecord("message", err.Error())
			r.logger.Debug("Dropped message body", "body", truncate(body, 80))
			continue
		}

		select {
		case out <- protocol.Envelope{Channel: r.config.Name, Record: rec, ReceivedAt: r.now()}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// truncate shortens s to at most n bytes without splitting a rune
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
