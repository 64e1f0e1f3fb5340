package repositoryimpl

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kazz187/asmith/internal/session"
	"github.com/kazz187/asmith/pkg/cerr"
	"github.com/kazz187/asmith/pkg/storage"
)

const sessionsPrefix = "sessions"

type YAMLRepository struct {
	storage storage.Storage
	now     func() time.Time
}

func NewYAMLRepository(s storage.Storage) *YAMLRepository {
	return &YAMLRepository{storage: s, now: time.Now}
}

// path maps a user id such as "@bot:example.org" to a storage safe name.
func path(userID string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, strings.TrimPrefix(userID, "@"))
	return fmt.Sprintf("%s/%s.yaml", sessionsPrefix, name)
}

func (r *YAMLRepository) Get(ctx context.Context, userID string) (*session.Session, error) {
	data, err := r.storage.Read(ctx, path(userID))
	if err != nil {
		return nil, cerr.WrapStorageReadError("session", err)
	}
	var s session.Session
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, cerr.NewError(cerr.DataLoss, "session is corrupted", fmt.Errorf("failed to unmarshal session: %w", err))
	}
	if s.UserID != userID {
		return nil, cerr.NewError(cerr.DataLoss, "session belongs to another user", fmt.Errorf("stored %q, want %q", s.UserID, userID))
	}
	return &s, nil
}

func (r *YAMLRepository) Save(ctx context.Context, s *session.Session) error {
	s.SavedAt = r.now().UTC()
	data, err := yaml.Marshal(s)
	if err != nil {
		return cerr.NewError(cerr.Internal, "failed to marshal session", err)
	}
	if err := r.storage.Write(ctx, path(s.UserID), data); err != nil {
		return cerr.WrapStorageWriteError("session", err)
	}
	return nil
}

func (r *YAMLRepository) Delete(ctx context.Context, userID string) error {
	if err := r.storage.Delete(ctx, path(userID)); err != nil {
		return cerr.WrapStorageDeleteError("session", err)
	}
	return nil
}
