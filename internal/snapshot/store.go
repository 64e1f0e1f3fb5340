package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kazz187/asmith/internal/task"
	"github.com/kazz187/asmith/pkg/cerr"
	"github.com/kazz187/asmith/pkg/storage"
)

const DefaultAppName = "asmith"

// maxNameAttempts bounds how far Save walks forward looking for a free
// name when several saves land in the same second.
const maxNameAttempts = 60

// ErrNoSnapshots is returned by LoadMostRecent when nothing has been saved.
var ErrNoSnapshots = errors.New("no files found")

// Store owns the room to task list mapping for the lifetime of the process
// and checkpoints it as a new snapshot on every Save.
type Store struct {
	mu    sync.RWMutex
	rooms map[string]*task.List

	storage   storage.Storage
	naming    Naming
	sessionID string
	now       func() time.Time
}

type Option func(*Store)

func WithAppName(app string) Option {
	return func(s *Store) {
		s.naming = NewNaming(app)
	}
}

func WithSessionID(id string) Option {
	return func(s *Store) {
		s.sessionID = id
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

func NewStore(st storage.Storage, opts ...Option) *Store {
	s := &Store{
		rooms:     make(map[string]*task.List),
		storage:   st,
		naming:    NewNaming(DefaultAppName),
		sessionID: uuid.NewString(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) SessionID() string {
	return s.sessionID
}

func (s *Store) Naming() Naming {
	return s.naming
}

// Update runs fn with exclusive access to the room's list. A room seen for
// the first time is only kept if fn leaves tasks in it.
func (s *Store) Update(room string, fn func(*task.List) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.rooms[room]
	if !ok {
		l = task.NewList()
	}
	err := fn(l)
	if !ok && l.Len() > 0 {
		s.rooms[room] = l
	}
	return err
}

// View runs fn with shared access to the room's list. Unknown rooms are
// presented as an empty list and are not created.
func (s *Store) View(room string, fn func(*task.List)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.rooms[room]
	if !ok {
		l = task.NewList()
	}
	fn(l)
}

// RoomSizes reports the number of tasks per room.
func (s *Store) RoomSizes() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sizes := make(map[string]int, len(s.rooms))
	for room, l := range s.rooms {
		sizes[room] = l.Len()
	}
	return sizes
}

func (s *Store) encodeState() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rooms := make(map[string][]*task.Task, len(s.rooms))
	for room, l := range s.rooms {
		rooms[room] = l.Tasks()
	}
	return encode(rooms)
}

// Save writes the whole state to a new snapshot and returns its name. An
// existing snapshot is never overwritten.
func (s *Store) Save(ctx context.Context) (string, error) {
	data, err := s.encodeState()
	if err != nil {
		return "", cerr.NewError(cerr.Internal, "failed to encode snapshot", err)
	}
	name, err := s.freeName(ctx)
	if err != nil {
		return "", err
	}
	if err := s.storage.Write(ctx, name, data); err != nil {
		return "", cerr.WrapStorageWriteError("snapshot "+name, err)
	}
	slog.DebugContext(ctx, "snapshot saved", "file", name, "bytes", len(data))
	return name, nil
}

func (s *Store) freeName(ctx context.Context) (string, error) {
	at := s.now().UTC().Truncate(time.Second)
	for range maxNameAttempts {
		name := s.naming.Name(s.sessionID, at)
		exists, err := s.storage.Exists(ctx, name)
		if err != nil {
			return "", cerr.WrapStorageReadError("snapshot "+name, err)
		}
		if !exists {
			return name, nil
		}
		at = at.Add(time.Second)
	}
	return "", cerr.NewError(cerr.ResourceExhausted, "no free snapshot name", nil)
}

// Load replaces the in-memory state with the named snapshot. On any error
// the current state is left exactly as it was.
func (s *Store) Load(ctx context.Context, name string) error {
	if err := s.naming.Validate(name); err != nil {
		return err
	}
	data, err := s.storage.Read(ctx, name)
	if err != nil {
		return cerr.WrapStorageReadError("snapshot "+name, err)
	}
	rooms, err := decode(data)
	if err != nil {
		return cerr.NewError(cerr.DataLoss, fmt.Sprintf("snapshot %s is corrupted", name), err)
	}

	s.mu.Lock()
	s.rooms = rooms
	s.mu.Unlock()
	slog.DebugContext(ctx, "snapshot loaded", "file", name, "rooms", len(rooms))
	return nil
}

// List returns the valid snapshot names ordered by their embedded timestamp,
// oldest first.
func (s *Store) List(ctx context.Context) ([]string, error) {
	paths, err := s.storage.List(ctx, "")
	if err != nil {
		return nil, cerr.WrapStorageListError("snapshots", err)
	}
	names := make([]string, 0, len(paths))
	for _, p := range paths {
		if s.naming.Match(p) {
			names = append(names, p)
		}
	}
	slices.SortStableFunc(names, func(a, b string) int {
		if c := strings.Compare(timestampKey(a), timestampKey(b)); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
	return names, nil
}

// LoadMostRecent loads the last snapshot returned by List and returns its
// name. It returns ErrNoSnapshots when there is nothing to load.
func (s *Store) LoadMostRecent(ctx context.Context) (string, error) {
	names, err := s.List(ctx)
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "", ErrNoSnapshots
	}
	last := names[len(names)-1]
	if err := s.Load(ctx, last); err != nil {
		return last, err
	}
	return last, nil
}

// Rooms returns the room identifiers currently holding a list, sorted.
func (s *Store) Rooms() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.rooms))
}
