package memory

import (
	"context"
	"sync"
	"time"

	"verification-service/internal/models"
)

// Store is an in-memory implementation of the service store interfaces.
// It backs unit tests and the development fallback when Redis/Scylla are
// unavailable. All maps are guarded by a single mutex; the dataset is small
// in both uses.
type Store struct {
	mu sync.Mutex

	codes        map[string]*codeEntry
	attempts     map[string]*counterEntry
	locks        map[string]time.Time
	tempLocks    map[string]time.Time
	counters     map[string]*counterEntry
	windows      map[string][]time.Time
	phones       map[string]*models.PhoneVerification // user id -> record
	phoneOwners  map[string]string                    // phone hash -> user id
	submissions  map[string]*models.SellerVerification
	digestOwners map[string]string // national id digest -> user id
	audit        []*models.AuditLogEntry

	now func() time.Time
}

type codeEntry struct {
	code      models.ActiveCode
	expiresAt time.Time
}

type counterEntry struct {
	count     int
	expiresAt time.Time
}

func NewStore() *Store {
	return &Store{
		codes:        make(map[string]*codeEntry),
		attempts:     make(map[string]*counterEntry),
		locks:        make(map[string]time.Time),
		tempLocks:    make(map[string]time.Time),
		counters:     make(map[string]*counterEntry),
		windows:      make(map[string][]time.Time),
		phones:       make(map[string]*models.PhoneVerification),
		phoneOwners:  make(map[string]string),
		submissions:  make(map[string]*models.SellerVerification),
		digestOwners: make(map[string]string),
		now:          time.Now,
	}
}

// SetClock overrides the time source. Test hook.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// ---- OTPStore ----

func (s *Store) PutCode(ctx context.Context, phoneHash string, code *models.ActiveCode, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[phoneHash] = &codeEntry{code: *code, expiresAt: s.now().Add(ttl)}
	delete(s.attempts, phoneHash)
	return nil
}

func (s *Store) GetCode(ctx context.Context, phoneHash string) (*models.ActiveCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.codes[phoneHash]
	if !ok || s.now().After(entry.expiresAt) {
		delete(s.codes, phoneHash)
		return nil, nil
	}
	code := entry.code
	return &code, nil
}

func (s *Store) DeleteCode(ctx context.Context, phoneHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.codes, phoneHash)
	delete(s.attempts, phoneHash)
	return nil
}

func (s *Store) IncrementAttempts(ctx context.Context, phoneHash string, ttl time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.attempts[phoneHash]
	if !ok || s.now().After(entry.expiresAt) {
		entry = &counterEntry{expiresAt: s.now().Add(ttl)}
		s.attempts[phoneHash] = entry
	}
	entry.count++
	return entry.count, nil
}

func (s *Store) ResetAttempts(ctx context.Context, phoneHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.attempts, phoneHash)
	return nil
}

// ---- KeyLocker ----

func (s *Store) AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if until, ok := s.locks[key]; ok && s.now().Before(until) {
		return false, nil
	}
	s.locks[key] = s.now().Add(ttl)
	return true, nil
}

func (s *Store) ReleaseLock(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locks, key)
	return nil
}

// ---- CounterStore ----

func (s *Store) IncrementCounter(ctx context.Context, key string, ttl time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.counters[key]
	if !ok || s.now().After(entry.expiresAt) {
		entry = &counterEntry{expiresAt: s.now().Add(ttl)}
		s.counters[key] = entry
	}
	entry.count++
	return entry.count, nil
}

func (s *Store) GetCounter(ctx context.Context, key string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.counters[key]
	if !ok || s.now().After(entry.expiresAt) {
		return 0, nil
	}
	return entry.count, nil
}

func (s *Store) ResetCounter(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.counters, key)
	return nil
}

func (s *Store) SetTemporaryLock(ctx context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tempLocks[key] = s.now().Add(ttl)
	return nil
}

func (s *Store) IsLocked(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	until, ok := s.tempLocks[key]
	if !ok || s.now().After(until) {
		delete(s.tempLocks, key)
		return false, nil
	}
	return true, nil
}

func (s *Store) SlidingWindowRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	cutoff := now.Add(-window)
	kept := s.windows[key][:0]
	for _, ts := range s.windows[key] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= limit {
		s.windows[key] = kept
		return false, len(kept), nil
	}
	s.windows[key] = append(kept, now)
	return true, len(kept) + 1, nil
}

// ---- VerificationStore ----

func (s *Store) UpsertPhoneVerification(ctx context.Context, pv *models.PhoneVerification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record := *pv
	s.phones[pv.UserID] = &record
	s.phoneOwners[pv.PhoneHash] = pv.UserID
	return nil
}

func (s *Store) GetPhoneVerification(ctx context.Context, userID string) (*models.PhoneVerification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pv, ok := s.phones[userID]
	if !ok {
		return nil, nil
	}
	record := *pv
	return &record, nil
}

func (s *Store) GetPhoneOwner(ctx context.Context, phoneHash string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phoneOwners[phoneHash], nil
}

func (s *Store) MarkPhoneVerified(ctx context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pv, ok := s.phones[userID]
	if !ok {
		return nil
	}
	pv.Verified = true
	verifiedAt := at
	pv.VerifiedAt = &verifiedAt
	pv.UpdatedAt = at
	return nil
}

func (s *Store) CreateSubmission(ctx context.Context, sub *models.SellerVerification, audit *models.AuditLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record := *sub
	entry := *audit
	s.submissions[sub.ID] = &record
	s.digestOwners[sub.NationalIDDigest] = sub.UserID
	s.audit = append(s.audit, &entry)
	return nil
}

func (s *Store) GetSubmission(ctx context.Context, id string) (*models.SellerVerification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.submissions[id]
	if !ok {
		return nil, nil
	}
	record := *sub
	return &record, nil
}

func (s *Store) GetLatestSubmissionByUser(ctx context.Context, userID string) (*models.SellerVerification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *models.SellerVerification
	for _, sub := range s.submissions {
		if sub.UserID != userID {
			continue
		}
		if latest == nil || sub.SubmittedAt.After(latest.SubmittedAt) {
			latest = sub
		}
	}
	if latest == nil {
		return nil, nil
	}
	record := *latest
	return &record, nil
}

func (s *Store) GetPendingSubmissionByUser(ctx context.Context, userID string) (*models.SellerVerification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.submissions {
		if sub.UserID == userID && sub.Status == models.SubmissionStatusPending {
			record := *sub
			return &record, nil
		}
	}
	return nil, nil
}

func (s *Store) FindNationalIDOwner(ctx context.Context, digest string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.digestOwners[digest], nil
}

func (s *Store) ListPending(ctx context.Context, limit int) ([]*models.SellerVerification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.SellerVerification
	for _, sub := range s.submissions {
		if sub.Status != models.SubmissionStatusPending {
			continue
		}
		record := *sub
		out = append(out, &record)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) ApplyReview(ctx context.Context, sub *models.SellerVerification, audit *models.AuditLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.submissions[sub.ID]
	if !ok {
		return nil
	}
	// Transition and audit entry land together or not at all
	stored.Status = sub.Status
	stored.ReviewedBy = sub.ReviewedBy
	stored.ReviewedAt = sub.ReviewedAt
	stored.ReviewerIP = sub.ReviewerIP
	stored.RejectionReason = sub.RejectionReason
	entry := *audit
	s.audit = append(s.audit, &entry)
	return nil
}

func (s *Store) ListTerminalOlderThan(ctx context.Context, status string, cutoff time.Time, limit int) ([]*models.SellerVerification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.SellerVerification
	for _, sub := range s.submissions {
		if sub.Status != status || sub.ReviewedAt == nil || !sub.ReviewedAt.Before(cutoff) {
			continue
		}
		record := *sub
		out = append(out, &record)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) DeleteSubmission(ctx context.Context, sub *models.SellerVerification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.submissions, sub.ID)
	delete(s.digestOwners, sub.NationalIDDigest)
	return nil
}

func (s *Store) AppendAudit(ctx context.Context, entry *models.AuditLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record := *entry
	s.audit = append(s.audit, &record)
	return nil
}

func (s *Store) ListAuditByUser(ctx context.Context, userID string, limit int) ([]*models.AuditLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.AuditLogEntry
	for _, entry := range s.audit {
		if entry.UserID != userID {
			continue
		}
		record := *entry
		out = append(out, &record)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
