package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"taxfiling/internal/filing/lifecycle"
	"taxfiling/internal/filing/models"
	id "taxfiling/pkg/domain"
	"taxfiling/pkg/platform/sentinel"
)

// InMemoryFilingStore stores filings in memory for tests/dev.
type InMemoryFilingStore struct {
	mu      sync.RWMutex
	filings map[id.FilingID]*models.Filing
}

// NewInMemoryFilingStore constructs an empty in-memory filing store.
func NewInMemoryFilingStore() *InMemoryFilingStore {
	return &InMemoryFilingStore{filings: make(map[id.FilingID]*models.Filing)}
}

func (s *InMemoryFilingStore) Create(_ context.Context, filing *models.Filing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if filing.IdempotencyKey != "" {
		for _, existing := range s.filings {
			if existing.OwnerID == filing.OwnerID && existing.IdempotencyKey == filing.IdempotencyKey {
				return fmt.Errorf("idempotency key already bound: %w", sentinel.ErrAlreadyUsed)
			}
		}
	}
	s.filings[filing.ID] = copyFiling(filing)
	return nil
}

func (s *InMemoryFilingStore) FindByID(_ context.Context, filingID id.FilingID) (*models.Filing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	filing, ok := s.filings[filingID]
	if !ok {
		return nil, fmt.Errorf("filing not found: %w", sentinel.ErrNotFound)
	}
	return copyFiling(filing), nil
}

// FindByIDForUpdate matches FindByID here: in-memory serialization comes
// from the transaction shard lock the caller already holds, not a row lock.
func (s *InMemoryFilingStore) FindByIDForUpdate(ctx context.Context, filingID id.FilingID) (*models.Filing, error) {
	return s.FindByID(ctx, filingID)
}

func (s *InMemoryFilingStore) FindByOwnerAndKey(_ context.Context, owner id.UserID, key string) (*models.Filing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, filing := range s.filings {
		if filing.OwnerID == owner && filing.IdempotencyKey == key && key != "" {
			return copyFiling(filing), nil
		}
	}
	return nil, fmt.Errorf("filing not found for idempotency key: %w", sentinel.ErrNotFound)
}

func (s *InMemoryFilingStore) FindLiveByOwnerAndPeriod(_ context.Context, owner id.UserID, period id.AssessmentPeriod) (*models.Filing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, filing := range s.filings {
		if filing.OwnerID == owner && filing.Period == period && filing.State != lifecycle.StateFiled {
			return copyFiling(filing), nil
		}
	}
	return nil, fmt.Errorf("no live filing for period: %w", sentinel.ErrNotFound)
}

// Execute holds the store lock across validate and mutate so concurrent
// read-modify-writes of the same filing serialize.
func (s *InMemoryFilingStore) Execute(_ context.Context, filingID id.FilingID, validate func(*models.Filing) error, mutate func(*models.Filing)) (*models.Filing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	filing, ok := s.filings[filingID]
	if !ok {
		return nil, fmt.Errorf("filing not found: %w", sentinel.ErrNotFound)
	}
	working := copyFiling(filing)
	if validate != nil {
		if err := validate(working); err != nil {
			return nil, err
		}
	}
	if mutate != nil {
		mutate(working)
	}
	s.filings[filingID] = copyFiling(working)
	return working, nil
}

func copyFiling(f *models.Filing) *models.Filing {
	cp := *f
	if f.Computation != nil {
		comp := *f.Computation
		comp.Signals = append([]models.Signal{}, f.Computation.Signals...)
		if f.Computation.Context != nil {
			dctx := *f.Computation.Context
			dctx.Requests = append([]models.AssistanceRequest{}, f.Computation.Context.Requests...)
			comp.Context = &dctx
		}
		cp.Computation = &comp
	}
	return &cp
}

// InMemoryDraftStore stores drafts in memory for tests/dev. Superseded
// copies accumulate in history, mirroring the append-only audit trail the
// SQL store keeps.
type InMemoryDraftStore struct {
	mu      sync.RWMutex
	drafts  map[id.DraftID]*models.Draft
	history map[id.FilingID][]*models.Draft
}

// NewInMemoryDraftStore constructs an empty in-memory draft store.
func NewInMemoryDraftStore() *InMemoryDraftStore {
	return &InMemoryDraftStore{
		drafts:  make(map[id.DraftID]*models.Draft),
		history: make(map[id.FilingID][]*models.Draft),
	}
}

func (s *InMemoryDraftStore) Create(_ context.Context, draft *models.Draft) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drafts[draft.ID] = copyDraft(draft)
	return nil
}

func (s *InMemoryDraftStore) FindByID(_ context.Context, draftID id.DraftID) (*models.Draft, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	draft, ok := s.drafts[draftID]
	if !ok {
		return nil, fmt.Errorf("draft not found: %w", sentinel.ErrNotFound)
	}
	return copyDraft(draft), nil
}

func (s *InMemoryDraftStore) FindActiveByFiling(_ context.Context, filingID id.FilingID) (*models.Draft, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, draft := range s.drafts {
		if draft.FilingID == filingID && draft.IsActive() {
			return copyDraft(draft), nil
		}
	}
	return nil, fmt.Errorf("active draft not found: %w", sentinel.ErrNotFound)
}

func (s *InMemoryDraftStore) UpdatePayload(_ context.Context, draftID id.DraftID, payload models.DraftPayload, step string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	draft, ok := s.drafts[draftID]
	if !ok {
		return fmt.Errorf("draft not found: %w", sentinel.ErrNotFound)
	}
	draft.Payload = payload
	if step != "" {
		draft.Step = step
	}
	draft.UpdatedAt = now
	return nil
}

func (s *InMemoryDraftStore) Archive(_ context.Context, draftID id.DraftID, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	draft, ok := s.drafts[draftID]
	if !ok {
		return fmt.Errorf("draft not found: %w", sentinel.ErrNotFound)
	}
	archived := copyDraft(draft)
	archived.SupersededAt = &now
	s.history[draft.FilingID] = append(s.history[draft.FilingID], archived)
	return nil
}

// HistoryByFiling returns archived copies, oldest first. Test helper.
func (s *InMemoryDraftStore) HistoryByFiling(filingID id.FilingID) []*models.Draft {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*models.Draft{}, s.history[filingID]...)
}

func copyDraft(d *models.Draft) *models.Draft {
	cp := *d
	if d.SupersededAt != nil {
		t := *d.SupersededAt
		cp.SupersededAt = &t
	}
	return &cp
}
