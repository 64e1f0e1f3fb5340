package bot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/asmith/internal/command"
	"github.com/kazz187/asmith/internal/eventbus"
	"github.com/kazz187/asmith/internal/failure"
	"github.com/kazz187/asmith/internal/matrix"
	"github.com/kazz187/asmith/internal/snapshot"
	"github.com/kazz187/asmith/internal/task"
	"github.com/kazz187/asmith/pkg/storage"
)

type step struct {
	msgs []matrix.Message
	err  error
}

type sent struct {
	room string
	text string
	html string
}

type fakeTransport struct {
	mu        sync.Mutex
	loginErrs []error
	steps     []step
	sendErr   error
	sent      []sent
	closed    bool
	syncs     int
	blocked   bool
}

func (f *fakeTransport) Login(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.loginErrs) == 0 {
		return nil
	}
	err := f.loginErrs[0]
	f.loginErrs = f.loginErrs[1:]
	return err
}

// Sync replays the scripted steps and then blocks until ctx is done.
func (f *fakeTransport) Sync(ctx context.Context) ([]matrix.Message, error) {
	f.mu.Lock()
	f.syncs++
	if len(f.steps) > 0 {
		s := f.steps[0]
		f.steps = f.steps[1:]
		f.mu.Unlock()
		return s.msgs, s.err
	}
	f.blocked = true
	f.mu.Unlock()
	<-ctx.Done()
	return nil, ctx.Err()
}

func (f *fakeTransport) Send(_ context.Context, room, text, html string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, sent{room: room, text: text, html: html})
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) idle() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.blocked
}

func (f *fakeTransport) syncCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.syncs
}

func (f *fakeTransport) replies() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sent(nil), f.sent...)
}

type noRestore struct{}

func (noRestore) LoadMostRecent(context.Context) (string, error) {
	return "", snapshot.ErrNoSnapshots
}

type echoHandler struct{}

func (echoHandler) Handle(_ context.Context, _, _, body string) (command.Reply, bool) {
	switch body {
	case "panic":
		panic("boom")
	case "quiet":
		return command.Reply{}, false
	}
	return command.Reply{Text: "echo " + body}, true
}

func netErr(kind failure.Kind) error {
	return &matrix.Error{Kind: kind, Op: "sync", Err: errors.New("down")}
}

func msg(room, body string) matrix.Message {
	return matrix.Message{Room: room, Sender: "@alice:example.org", Body: body}
}

// runUntilIdle runs b until the transport blocks after its last step, then stops it.
func runUntilIdle(t *testing.T, b *Bot, tr *fakeTransport) error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	select {
	case err := <-done:
		return err
	case <-waitFor(tr.idle):
	}
	cancel()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("bot did not stop")
		return nil
	}
}

func waitFor(cond func() bool) <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		for !cond() {
			time.Sleep(time.Millisecond)
		}
		close(ch)
	}()
	return ch
}

func TestBot_HandlesCommandsAndRestores(t *testing.T) {
	ctx := context.Background()
	st, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	seed := snapshot.NewStore(st, snapshot.WithSessionID("seed"))
	require.NoError(t, seed.Update("!room:x", func(l *task.List) error {
		l.Add("@bob:x", "Restored task")
		return nil
	}))
	_, err = seed.Save(ctx)
	require.NoError(t, err)

	store := snapshot.NewStore(st, snapshot.WithSessionID("run"))
	bus := eventbus.New()
	_, events := bus.Subscribe(16)
	router := command.NewRouter(store, command.WithEventBus(bus))
	tr := &fakeTransport{steps: []step{
		{msgs: []matrix.Message{msg("!room:x", "hello"), msg("!room:x", "!add Buy milk")}},
		{msgs: []matrix.Message{msg("!room:x", "!list")}},
	}}

	b := New(tr, router, store, failure.NewMonitor(3), WithEventBus(bus), WithRetryDelay(0))
	require.NoError(t, runUntilIdle(t, b, tr))

	replies := tr.replies()
	require.Len(t, replies, 2)
	assert.Contains(t, replies[0].text, "Buy milk")
	assert.Contains(t, replies[1].text, "1. [pending] Restored task")
	assert.Contains(t, replies[1].text, "2. [pending] Buy milk")
	assert.True(t, tr.closed)

	first := <-events
	assert.Equal(t, eventbus.SnapshotLoaded, first.Type)
}

func TestBot_NonCommandsAndPanics(t *testing.T) {
	tr := &fakeTransport{steps: []step{
		{msgs: []matrix.Message{msg("!r:x", "quiet"), msg("!r:x", "panic"), msg("!r:x", "ping")}},
	}}
	b := New(tr, echoHandler{}, noRestore{}, failure.NewMonitor(3), WithRetryDelay(0))
	require.NoError(t, runUntilIdle(t, b, tr))

	assert.Equal(t, []sent{{room: "!r:x", text: "echo ping"}}, tr.replies())
}

func TestBot_RetryBudgetExhausted(t *testing.T) {
	bus := eventbus.New()
	_, events := bus.Subscribe(16)
	tr := &fakeTransport{steps: []step{
		{err: netErr(failure.KindNetwork)},
		{err: netErr(failure.KindTimeout)},
		{err: netErr(failure.KindNetwork)},
		{msgs: []matrix.Message{msg("!r:x", "never")}},
	}}
	monitor := failure.NewMonitor(3)
	b := New(tr, echoHandler{}, noRestore{}, monitor, WithEventBus(bus), WithRetryDelay(0))

	err := b.Run(context.Background())
	assert.ErrorIs(t, err, ErrRetryBudgetExhausted)
	assert.True(t, tr.closed)
	assert.Empty(t, tr.replies())
	assert.Equal(t, 3, monitor.Stats().Total)

	ev := <-events
	assert.Equal(t, eventbus.TransportFailure, ev.Type)
	assert.Equal(t, "network_error", ev.Metadata["kind"])
}

func TestBot_CriticalFailuresStopEarly(t *testing.T) {
	tr := &fakeTransport{steps: []step{
		{err: netErr(failure.KindSync)},
		{err: netErr(failure.KindSync)},
	}}
	b := New(tr, echoHandler{}, noRestore{}, failure.NewMonitor(10), WithRetryDelay(0))
	assert.ErrorIs(t, b.Run(context.Background()), ErrRetryBudgetExhausted)
}

func TestBot_LoginFailures(t *testing.T) {
	loginErr := &matrix.Error{Kind: failure.KindLogin, Op: "login", Err: errors.New("forbidden")}
	tr := &fakeTransport{loginErrs: []error{loginErr, loginErr}}
	b := New(tr, echoHandler{}, noRestore{}, failure.NewMonitor(5), WithRetryDelay(0))
	assert.ErrorIs(t, b.Run(context.Background()), ErrRetryBudgetExhausted)
	assert.Zero(t, tr.syncs)
}

func TestBot_RecoversBetweenFailures(t *testing.T) {
	tr := &fakeTransport{
		loginErrs: []error{netErr(failure.KindNetwork)},
		steps: []step{
			{err: netErr(failure.KindNetwork)},
			{err: netErr(failure.KindNetwork)},
			{msgs: []matrix.Message{msg("!r:x", "ping")}},
			{err: netErr(failure.KindNetwork)},
			{err: netErr(failure.KindNetwork)},
			{},
		},
	}
	monitor := failure.NewMonitor(3)
	b := New(tr, echoHandler{}, noRestore{}, monitor, WithRetryDelay(0))
	require.NoError(t, runUntilIdle(t, b, tr))

	assert.Len(t, tr.replies(), 1)
	assert.Equal(t, 5, monitor.Stats().Total)
	assert.Zero(t, monitor.ConsecutiveFailures())
}

func TestBot_SendFailuresCount(t *testing.T) {
	tr := &fakeTransport{
		sendErr: &matrix.Error{Kind: failure.KindSend, Op: "send", Err: errors.New("rate limited")},
		steps: []step{
			{msgs: []matrix.Message{msg("!r:x", "a"), msg("!r:x", "b"), msg("!r:x", "c")}},
		},
	}
	b := New(tr, echoHandler{}, noRestore{}, failure.NewMonitor(3), WithRetryDelay(0))
	assert.ErrorIs(t, b.Run(context.Background()), ErrRetryBudgetExhausted)
}

func TestBot_WaitIsCancellable(t *testing.T) {
	tr := &fakeTransport{steps: []step{{err: netErr(failure.KindNetwork)}}}
	b := New(tr, echoHandler{}, noRestore{}, failure.NewMonitor(3), WithRetryDelay(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()
	<-waitFor(func() bool { return tr.syncCount() > 0 })
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("retry wait ignored cancellation")
	}
}
