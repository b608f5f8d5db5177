package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kairohq/backend/services/meeting/entity"
)

// memory is the in-process Storage used when no DATABASE_URL is configured
// and by tests. Reconciler and poller both write through it, so every access
// takes the lock and rows are copied on the way in and out.
type memory struct {
	mu       sync.RWMutex
	meetings map[uuid.UUID]*entity.Meeting
	byEvent  map[string]uuid.UUID
}

func NewMemory() Storage {
	return &memory{
		meetings: make(map[uuid.UUID]*entity.Meeting),
		byEvent:  make(map[string]uuid.UUID),
	}
}

func (s *memory) CreateMeeting(ctx context.Context, m *entity.Meeting) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.ExternalEventID != "" {
		if _, exists := s.byEvent[m.ExternalEventID]; exists {
			return ErrDuplicateExternalEvent
		}
	}

	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now

	row := *m
	s.meetings[m.ID] = &row
	if m.ExternalEventID != "" {
		s.byEvent[m.ExternalEventID] = m.ID
	}
	return nil
}

func (s *memory) GetMeeting(ctx context.Context, id uuid.UUID) (*entity.Meeting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.meetings[id]
	if !ok {
		return nil, ErrNotFound
	}
	row := *m
	return &row, nil
}

func (s *memory) GetMeetingByExternalEventID(ctx context.Context, eventID string) (*entity.Meeting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEvent[eventID]
	if !ok {
		return nil, ErrNotFound
	}
	row := *s.meetings[id]
	return &row, nil
}

func (s *memory) GetMeetingByBotID(ctx context.Context, botID string) (*entity.Meeting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, m := range s.meetings {
		if m.BotID == botID && botID != "" {
			row := *m
			return &row, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memory) UpdateMeeting(ctx context.Context, m *entity.Meeting) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.meetings[m.ID]
	if !ok {
		return ErrNotFound
	}

	if prev.ExternalEventID != "" && prev.ExternalEventID != m.ExternalEventID {
		delete(s.byEvent, prev.ExternalEventID)
	}
	if m.ExternalEventID != "" {
		if other, exists := s.byEvent[m.ExternalEventID]; exists && other != m.ID {
			return ErrDuplicateExternalEvent
		}
		s.byEvent[m.ExternalEventID] = m.ID
	}

	m.CreatedAt = prev.CreatedAt
	m.UpdatedAt = time.Now().UTC()

	row := *m
	s.meetings[m.ID] = &row
	return nil
}

func (s *memory) ListMeetings(ctx context.Context, filter ListFilter) ([]*entity.Meeting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*entity.Meeting, 0)
	for _, m := range s.meetings {
		if !filter.matches(m) {
			continue
		}
		row := *m
		out = append(out, &row)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].ScheduledStart.Equal(out[j].ScheduledStart) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].ScheduledStart.Before(out[j].ScheduledStart)
	})
	return out, nil
}
