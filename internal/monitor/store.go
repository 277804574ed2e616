package monitor

import (
	"context"
	"errors"
	"sync"

	"github.com/fabianmarian8/pagewatch/api/schemas"
)

// RuleRecord is everything the observer persists between cycles for one
// rule: the anti-flap state plus the structural fingerprint drift detection
// compares against.
type RuleRecord struct {
	State       schemas.RuleState          `json:"state"`
	Fingerprint *schemas.SchemaFingerprint `json:"fingerprint,omitempty"`
}

func (r *RuleRecord) clone() *RuleRecord {
	if r == nil {
		return nil
	}
	out := &RuleRecord{State: *r.State.Clone()}
	if r.Fingerprint != nil {
		fp := *r.Fingerprint
		fp.SchemaTypes = append([]string(nil), r.Fingerprint.SchemaTypes...)
		out.Fingerprint = &fp
	}
	return out
}

// RuleStore persists per-rule observation state between cycles. Load returns
// (nil, nil) for a rule that has never been observed.
type RuleStore interface {
	Load(ctx context.Context, ruleID string) (*RuleRecord, error)
	Save(ctx context.Context, ruleID string, record *RuleRecord) error
}

// MemoryStore keeps records in process memory. Records are deep-copied on
// both paths so callers never alias stored state.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*RuleRecord
}

var _ RuleStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*RuleRecord)}
}

func (s *MemoryStore) Load(_ context.Context, ruleID string) (*RuleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records[ruleID].clone(), nil
}

func (s *MemoryStore) Save(_ context.Context, ruleID string, record *RuleRecord) error {
	if ruleID == "" {
		return errors.New("store: empty rule id")
	}
	if record == nil {
		return errors.New("store: nil record")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[ruleID] = record.clone()
	return nil
}

// Len reports how many rules have stored state.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
