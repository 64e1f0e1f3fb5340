package bot

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/kazz187/asmith/internal/command"
	"github.com/kazz187/asmith/internal/eventbus"
	"github.com/kazz187/asmith/internal/failure"
	"github.com/kazz187/asmith/internal/matrix"
	"github.com/kazz187/asmith/internal/metrics"
	"github.com/kazz187/asmith/internal/snapshot"
	"github.com/kazz187/asmith/pkg/clog"
	"github.com/kazz187/asmith/pkg/panicerr"
)

const DefaultRetryDelay = 5 * time.Second

// ErrRetryBudgetExhausted is returned by Run when the failure monitor gives up
// on the transport.
var ErrRetryBudgetExhausted = errors.New("connection retry budget exhausted")

type Transport interface {
	Login(ctx context.Context) error
	Sync(ctx context.Context) ([]matrix.Message, error)
	Send(ctx context.Context, room, text, html string) error
	Close() error
}

type Handler interface {
	Handle(ctx context.Context, room, sender, body string) (command.Reply, bool)
}

type Restorer interface {
	LoadMostRecent(ctx context.Context) (string, error)
}

type Bot struct {
	transport  Transport
	handler    Handler
	restorer   Restorer
	monitor    *failure.Monitor
	bus        *eventbus.Bus
	metrics    *metrics.Metrics
	retryDelay time.Duration
}

type Option func(*Bot)

func WithEventBus(bus *eventbus.Bus) Option {
	return func(b *Bot) { b.bus = bus }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Bot) { b.metrics = m }
}

func WithRetryDelay(d time.Duration) Option {
	return func(b *Bot) { b.retryDelay = d }
}

func New(t Transport, h Handler, r Restorer, monitor *failure.Monitor, opts ...Option) *Bot {
	b := &Bot{
		transport:  t,
		handler:    h,
		restorer:   r,
		monitor:    monitor,
		retryDelay: DefaultRetryDelay,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Run logs in, restores the most recent snapshot and serves commands until
// ctx is cancelled. It returns ErrRetryBudgetExhausted when the transport
// keeps failing.
func (b *Bot) Run(ctx context.Context) error {
	defer func() {
		if err := b.transport.Close(); err != nil {
			slog.Warn("failed to close transport", "error", err)
		}
	}()

	for {
		err := b.transport.Login(ctx)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return nil
		}
		if b.fail(ctx, "login", err) {
			return ErrRetryBudgetExhausted
		}
		if !b.wait(ctx) {
			return nil
		}
	}
	if prev := b.monitor.RecordSuccess(); prev > 0 {
		slog.InfoContext(ctx, "logged in after failures", "failures", prev)
	}
	slog.InfoContext(ctx, "bot started")

	b.restore(ctx)

	for {
		msgs, err := b.transport.Sync(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if b.fail(ctx, "sync", err) {
				return ErrRetryBudgetExhausted
			}
			if !b.wait(ctx) {
				return nil
			}
			continue
		}
		if prev := b.monitor.RecordSuccess(); prev > 0 {
			slog.InfoContext(ctx, "connection recovered", "failures", prev)
		}
		b.metrics.SyncSucceeded()

		for _, msg := range msgs {
			if ctx.Err() != nil {
				return nil
			}
			if b.dispatch(ctx, msg) {
				return ErrRetryBudgetExhausted
			}
		}
	}
}

func (b *Bot) restore(ctx context.Context) {
	name, err := b.restorer.LoadMostRecent(ctx)
	switch {
	case errors.Is(err, snapshot.ErrNoSnapshots):
		slog.InfoContext(ctx, "no snapshot to restore", "reason", err.Error())
	case err != nil:
		slog.WarnContext(ctx, "failed to restore snapshot", "name", name, "error", err)
		b.metrics.SnapshotLoaded(err)
	default:
		slog.InfoContext(ctx, "restored snapshot", "name", name)
		b.metrics.SnapshotLoaded(nil)
		b.bus.PublishNew(eventbus.SnapshotLoaded, "", "", map[string]string{"file": name})
	}
}

// dispatch handles one message and reports whether the process must stop.
func (b *Bot) dispatch(ctx context.Context, msg matrix.Message) bool {
	ctx = clog.ContextWithMessage(ctx, msg.Room, msg.Sender)
	reply, ok, err := b.handle(ctx, msg)
	if err != nil {
		clog.AddError(ctx, err)
		slog.ErrorContext(ctx, "message handler panicked")
		return false
	}
	if !ok {
		return false
	}
	if err := b.transport.Send(ctx, msg.Room, reply.Text, reply.HTML); err != nil {
		if ctx.Err() != nil {
			return false
		}
		return b.fail(ctx, "send", err)
	}
	return false
}

func (b *Bot) handle(ctx context.Context, msg matrix.Message) (command.Reply, bool, error) {
	var ok bool
	reply, err := panicerr.Value(func() (command.Reply, error) {
		var r command.Reply
		r, ok = b.handler.Handle(ctx, msg.Room, msg.Sender, msg.Body)
		return r, nil
	})
	return reply, ok, err
}

// fail records a transport failure and reports whether the process must stop.
func (b *Bot) fail(ctx context.Context, op string, err error) bool {
	kind := matrix.KindOf(err)
	terminate := b.monitor.RecordFailure(kind)
	b.metrics.TransportFailed(string(kind))
	b.bus.PublishNew(eventbus.TransportFailure, "", "", map[string]string{
		"op":    op,
		"kind":  string(kind),
		"error": err.Error(),
	})
	slog.WarnContext(ctx, "transport failure",
		"op", op,
		"kind", kind,
		"consecutive", b.monitor.ConsecutiveFailures(),
		"error", err,
	)
	if terminate {
		slog.ErrorContext(ctx, "giving up on transport\n"+b.monitor.StatusReport())
	}
	return terminate
}

func (b *Bot) wait(ctx context.Context) bool {
	if b.retryDelay <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(b.retryDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
