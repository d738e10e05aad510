package bridge

import (
	"context"
	"sort"
	"sync"
)

// InMemoryStore keeps correlation records in process memory. It backs tests
// and local development; production deployments use PostgresStore.
type InMemoryStore struct {
	mu      sync.Mutex
	byIssue map[int64]IssueRecord
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{byIssue: map[int64]IssueRecord{}}
}

func (s *InMemoryStore) Create(_ context.Context, rec IssueRecord) error {
	if rec.IssueID <= 0 || rec.RootMessageID == "" || rec.RoomID == "" {
		return ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byIssue[rec.IssueID]; ok {
		return ErrAlreadyExists
	}
	s.byIssue[rec.IssueID] = rec
	return nil
}

func (s *InMemoryStore) FindByIssueID(_ context.Context, issueID int64) (IssueRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byIssue[issueID]
	if !ok {
		return IssueRecord{}, ErrNotFound
	}
	return rec, nil
}

func (s *InMemoryStore) FindByRootMessageID(_ context.Context, messageID string) (IssueRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.byIssue {
		if rec.RootMessageID == messageID {
			return rec, nil
		}
	}
	return IssueRecord{}, ErrNotFound
}

func (s *InMemoryStore) SetStatusMarker(_ context.Context, issueID int64, markerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byIssue[issueID]
	if !ok {
		return ErrNotFound
	}
	rec.StatusMarkerID = markerID
	s.byIssue[issueID] = rec
	return nil
}

func (s *InMemoryStore) List(_ context.Context) ([]IssueRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := make([]IssueRecord, 0, len(s.byIssue))
	for _, rec := range s.byIssue {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].IssueID < records[j].IssueID })
	return records, nil
}

func (s *InMemoryStore) Close() error {
	return nil
}
