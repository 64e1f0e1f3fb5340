package command

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/kazz187/asmith/internal/eventbus"
	"github.com/kazz187/asmith/internal/metrics"
	"github.com/kazz187/asmith/internal/snapshot"
	"github.com/kazz187/asmith/internal/task"
	"github.com/kazz187/asmith/pkg/clog"
	"github.com/kazz187/asmith/pkg/panicerr"
)

const (
	outcomeOK       = "ok"
	outcomeRejected = "rejected"
	outcomeFailed   = "failed"
)

// Router executes chat commands against the snapshot store. Every
// successful mutation is followed by a full Save.
type Router struct {
	store   *snapshot.Store
	bus     *eventbus.Bus
	metrics *metrics.Metrics
	appName string
}

type Option func(*Router)

func WithEventBus(bus *eventbus.Bus) Option {
	return func(r *Router) {
		r.bus = bus
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Router) {
		r.metrics = m
	}
}

func NewRouter(store *snapshot.Store, opts ...Option) *Router {
	r := &Router{
		store:   store,
		appName: store.Naming().App(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle processes one message. ok is false when body is not a command and
// nothing should be sent back.
func (r *Router) Handle(ctx context.Context, room, sender, body string) (reply Reply, ok bool) {
	cmd, err := Parse(body)
	if errors.Is(err, ErrNotCommand) {
		return Reply{}, false
	}
	var perr *ParseError
	if errors.As(err, &perr) {
		clog.AddAttribute(ctx, clog.CommandAttributeKey, perr.Word)
		slog.InfoContext(ctx, "command rejected", "reason", perr.Error())
		if perr.Failure == UnknownCommand {
			r.metrics.CommandHandled("unknown", outcomeRejected)
			return unknownCommandReply(perr.Word), true
		}
		r.metrics.CommandHandled(string(lookupOr(perr.Word)), outcomeRejected)
		return invalidArgumentReply(perr.Word), true
	}

	clog.AddAttribute(ctx, clog.CommandAttributeKey, string(cmd.Name))
	reply, err = panicerr.Value(func() (Reply, error) {
		return r.execute(ctx, room, sender, cmd)
	})
	if err != nil {
		clog.AddError(ctx, err)
		slog.ErrorContext(ctx, "command failed")
		r.metrics.CommandHandled(string(cmd.Name), outcomeFailed)
		return internalErrorReply(err), true
	}
	r.metrics.CommandHandled(string(cmd.Name), outcomeOK)
	slog.DebugContext(ctx, "command handled")
	return reply, true
}

func lookupOr(word string) Name {
	if n, ok := Lookup(word); ok {
		return n
	}
	return Name(word)
}

func (r *Router) execute(ctx context.Context, room, sender string, cmd Command) (Reply, error) {
	switch cmd.Name {
	case Add:
		return r.add(ctx, room, sender, cmd.Text), nil
	case List:
		return r.list(room), nil
	case Done:
		return r.remove(ctx, room, sender, cmd.Position, task.StatusDone), nil
	case Close:
		return r.remove(ctx, room, sender, cmd.Position, task.StatusClosed), nil
	case Log:
		return r.log(ctx, room, sender, cmd.Position, cmd.Text), nil
	case Details:
		return r.details(room, cmd.Position), nil
	case Edit:
		return r.edit(ctx, room, sender, cmd.Position, cmd.Text), nil
	case Clear:
		return r.clear(ctx, room, sender), nil
	case Save:
		return r.save(ctx), nil
	case Load:
		return r.load(ctx, room, sender, cmd.Text), nil
	case LoadLast:
		return r.loadLast(ctx, room, sender), nil
	case ListFiles:
		return r.listFiles(ctx), nil
	case Help:
		return helpReply(r.appName, cmd.Text), nil
	}
	return Reply{}, errors.New("unhandled command " + string(cmd.Name))
}

// persist saves after a mutation. A failed save does not undo the change;
// the reply carries a warning instead.
func (r *Router) persist(ctx context.Context, reply Reply) Reply {
	name, err := r.store.Save(ctx)
	r.metrics.SnapshotSaved(err)
	if err != nil {
		clog.AddError(ctx, err)
		slog.ErrorContext(ctx, "failed to save snapshot after mutation")
		return unsavedWarning(reply, err)
	}
	r.bus.PublishNew(eventbus.SnapshotSaved, "", "", map[string]string{"file": name})
	return reply
}

func (r *Router) add(ctx context.Context, room, sender, title string) Reply {
	var created *task.Task
	_ = r.store.Update(room, func(l *task.List) error {
		created = l.Add(sender, title)
		return nil
	})
	r.bus.PublishNew(eventbus.TaskCreated, room, sender, map[string]string{
		"title": created.Title,
		"id":    strconv.Itoa(created.ID),
	})
	return r.persist(ctx, addedReply(created))
}

func (r *Router) list(room string) Reply {
	var tasks []*task.Task
	r.store.View(room, func(l *task.List) {
		tasks = l.Tasks()
	})
	if len(tasks) == 0 {
		return plain(noTasksText)
	}
	return listReply(tasks)
}

// withTask resolves a position for the in-place commands. It returns the
// reply to send when the position cannot be used.
func withTask(l *task.List, position int) (*task.Task, *Reply) {
	if l.Len() == 0 {
		r := plain(noTasksText)
		return nil, &r
	}
	t, err := l.Get(position)
	if err != nil {
		r := invalidPositionReply(position)
		return nil, &r
	}
	return t, nil
}

func (r *Router) remove(ctx context.Context, room, sender string, position int, status string) Reply {
	var (
		removed *task.Task
		early   *Reply
	)
	_ = r.store.Update(room, func(l *task.List) error {
		if _, early = withTask(l, position); early != nil {
			return nil
		}
		removed, _ = l.RemoveAt(position)
		removed.SetStatus(sender, status)
		return nil
	})
	if early != nil {
		return *early
	}
	r.bus.PublishNew(eventbus.TaskRemoved, room, sender, map[string]string{
		"title":  removed.Title,
		"status": status,
	})
	if status == task.StatusDone {
		return r.persist(ctx, doneReply(removed))
	}
	return r.persist(ctx, closedReply(removed))
}

func (r *Router) log(ctx context.Context, room, sender string, position int, note string) Reply {
	var (
		reply   Reply
		mutated bool
	)
	_ = r.store.Update(room, func(l *task.List) error {
		t, early := withTask(l, position)
		if early != nil {
			reply = *early
			return nil
		}
		t.AddLog(sender, note)
		reply, mutated = logReply(position, note, t), true
		return nil
	})
	if !mutated {
		return reply
	}
	r.bus.PublishNew(eventbus.TaskLogAdded, room, sender, map[string]string{"position": strconv.Itoa(position)})
	return r.persist(ctx, reply)
}

func (r *Router) details(room string, position int) Reply {
	var reply Reply
	r.store.View(room, func(l *task.List) {
		t, early := withTask(l, position)
		if early != nil {
			reply = *early
			return
		}
		reply = detailsReply(position, t)
	})
	return reply
}

func (r *Router) edit(ctx context.Context, room, sender string, position int, title string) Reply {
	var (
		old   string
		early *Reply
	)
	_ = r.store.Update(room, func(l *task.List) error {
		var t *task.Task
		if t, early = withTask(l, position); early != nil {
			return nil
		}
		old = t.Title
		t.SetTitle(sender, title)
		return nil
	})
	if early != nil {
		return *early
	}
	r.bus.PublishNew(eventbus.TaskTitleEdited, room, sender, map[string]string{"from": old, "to": title})
	return r.persist(ctx, editReply(position, old, title))
}

func (r *Router) clear(ctx context.Context, room, sender string) Reply {
	var removed int
	_ = r.store.Update(room, func(l *task.List) error {
		removed = l.Clear()
		return nil
	})
	if removed == 0 {
		return plain(noTasksClearText)
	}
	r.bus.PublishNew(eventbus.RoomCleared, room, sender, map[string]string{"removed": strconv.Itoa(removed)})
	return r.persist(ctx, plain(clearedText))
}

func (r *Router) save(ctx context.Context) Reply {
	name, err := r.store.Save(ctx)
	r.metrics.SnapshotSaved(err)
	if err != nil {
		clog.AddError(ctx, err)
		slog.ErrorContext(ctx, "manual save failed")
		return saveFailedReply(err)
	}
	r.bus.PublishNew(eventbus.SnapshotSaved, "", "", map[string]string{"file": name})
	return savedReply(name)
}

func (r *Router) load(ctx context.Context, room, sender, name string) Reply {
	err := r.store.Load(ctx, name)
	switch {
	case errors.Is(err, snapshot.ErrInvalidCharacters):
		return plain(badCharsText)
	case errors.Is(err, snapshot.ErrInvalidFormat):
		return badFormatReply(name, r.store.Naming().Format())
	}
	r.metrics.SnapshotLoaded(err)
	if err != nil {
		clog.AddError(ctx, err)
		slog.WarnContext(ctx, "snapshot load failed", "file", name)
		return loadFailedReply(name)
	}
	r.bus.PublishNew(eventbus.SnapshotLoaded, room, sender, map[string]string{"file": name})
	return loadedReply(name)
}

func (r *Router) loadLast(ctx context.Context, room, sender string) Reply {
	name, err := r.store.LoadMostRecent(ctx)
	if errors.Is(err, snapshot.ErrNoSnapshots) {
		return plain(noFilesText)
	}
	if err != nil && name == "" {
		clog.AddError(ctx, err)
		slog.ErrorContext(ctx, "failed to list snapshots")
		return listFilesFailedReply(err)
	}
	r.metrics.SnapshotLoaded(err)
	if err != nil {
		clog.AddError(ctx, err)
		slog.WarnContext(ctx, "snapshot load failed", "file", name)
		return lastLoadFailedReply(name)
	}
	r.bus.PublishNew(eventbus.SnapshotLoaded, room, sender, map[string]string{"file": name})
	return lastLoadedReply(name)
}

func (r *Router) listFiles(ctx context.Context) Reply {
	names, err := r.store.List(ctx)
	if err != nil {
		clog.AddError(ctx, err)
		slog.ErrorContext(ctx, "failed to list snapshots")
		return listFilesFailedReply(err)
	}
	if len(names) == 0 {
		return plain(noFilesText)
	}
	return filesReply(names)
}
