package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"judgebox/internal/judge/catalog"
	"judgebox/internal/judge/model"
	appErr "judgebox/pkg/errors"

	"github.com/google/uuid"
)

// MemoryStore keeps submissions in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	nextID  int64
	byID    map[int64]*model.Submission
	byToken map[string]int64
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[int64]*model.Submission),
		byToken: make(map[string]int64),
		now:     time.Now,
	}
}

func (s *MemoryStore) Create(ctx context.Context, sub *model.Submission) (*model.Submission, error) {
	if sub == nil {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("submission is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := sub.Clone()
	s.nextID++
	rec.ID = s.nextID
	rec.Token = s.freshToken()
	now := s.now()
	rec.Status = catalog.InQueue
	rec.CreatedAt = now
	rec.QueuedAt = now
	rec.StartedAt = nil
	rec.FinishedAt = nil
	rec.Result = model.Result{}

	s.byID[rec.ID] = rec
	s.byToken[rec.Token] = rec.ID
	return rec.Clone(), nil
}

func (s *MemoryStore) freshToken() string {
	for {
		token := uuid.NewString()
		if _, taken := s.byToken[token]; !taken {
			return token
		}
	}
}

func (s *MemoryStore) Update(ctx context.Context, sub *model.Submission) error {
	if sub == nil {
		return appErr.New(appErr.InvalidParams).WithMessage("submission is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.byID[sub.ID]
	if !ok {
		return notFound()
	}
	if err := checkUpdate(stored, sub); err != nil {
		return err
	}
	s.byID[sub.ID] = sub.Clone()
	return nil
}

func (s *MemoryStore) ByToken(ctx context.Context, token string) (*model.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byToken[token]
	if !ok {
		return nil, notFound()
	}
	return s.byID[id].Clone(), nil
}

func (s *MemoryStore) ByID(ctx context.Context, id int64) (*model.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.byID[id]
	if !ok {
		return nil, notFound()
	}
	return sub.Clone(), nil
}

func (s *MemoryStore) All(ctx context.Context) ([]*model.Submission, error) {
	s.mu.RLock()
	out := make([]*model.Submission, 0, len(s.byID))
	for _, sub := range s.byID {
		out = append(out, sub.Clone())
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
