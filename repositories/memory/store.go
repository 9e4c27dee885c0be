// Package memory is an in-process credential store with the same semantics as
// the PostgreSQL repositories, used by the service, handler and route tests.
package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Poneaswaran/College-Management-System-Backend/models"
	"github.com/Poneaswaran/College-Management-System-Backend/repositories"
)

type txKey struct{}

// Store holds every table. All repositories returned by Repositories share it.
type Store struct {
	mu   sync.Mutex
	txMu sync.Mutex

	principals  map[uuid.UUID]*models.Principal
	links       []models.GuardianLink
	sessions    map[uuid.UUID]*models.Session
	revocations map[uuid.UUID]*models.RevocationEntry
	otps        map[uuid.UUID]*models.GuardianOTP
	events      []*models.AuthEvent

	failure error
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		principals:  make(map[uuid.UUID]*models.Principal),
		sessions:    make(map[uuid.UUID]*models.Session),
		revocations: make(map[uuid.UUID]*models.RevocationEntry),
		otps:        make(map[uuid.UUID]*models.GuardianOTP),
	}
}

// Fail makes every subsequent call return err until Fail(nil).
func (s *Store) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failure = err
}

// Repositories returns repository views over the store
func (s *Store) Repositories() *repositories.Repositories {
	return &repositories.Repositories{
		Principals:   &principalRepo{s},
		Sessions:     &sessionRepo{s},
		Revocations:  &revocationRepo{s},
		GuardianOTPs: &otpRepo{s},
		AuthEvents:   &eventRepo{s},
	}
}

// TransactionManager returns a manager that serialises transactions on the store.
func (s *Store) TransactionManager() repositories.TransactionManager {
	return &txManager{s}
}

// AddGuardianLink registers a parent for a student
func (s *Store) AddGuardianLink(link models.GuardianLink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.links = append(s.links, link)
}

// SetActive flips a principal's active flag
func (s *Store) SetActive(id uuid.UUID, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.principals[id]; ok {
		p.IsActive = active
	}
}

// Events returns a snapshot of the audit trail
func (s *Store) Events() []*models.AuthEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.AuthEvent, len(s.events))
	copy(out, s.events)
	return out
}

func (s *Store) lock() (func(), error) {
	s.mu.Lock()
	if s.failure != nil {
		err := s.failure
		s.mu.Unlock()
		return nil, err
	}
	return s.mu.Unlock, nil
}

// txManager serialises transactions on the store but does not roll back:
// writes made before a transaction fails stay applied.
type txManager struct {
	s *Store
}

type tx struct {
	ctx     context.Context
	release sync.Once
	unlock  func()
}

func (t *tx) Commit() error {
	t.release.Do(t.unlock)
	return nil
}

func (t *tx) Rollback() error {
	t.release.Do(t.unlock)
	return nil
}

func (t *tx) Context() context.Context { return t.ctx }

func (m *txManager) Begin(ctx context.Context) (repositories.Transaction, error) {
	if ctx.Value(txKey{}) != nil {
		return nil, errors.New("nested transactions are not supported")
	}
	unlock, err := m.s.lock()
	if err != nil {
		return nil, err
	}
	unlock()

	m.s.txMu.Lock()
	return &tx{ctx: context.WithValue(ctx, txKey{}, true), unlock: m.s.txMu.Unlock}, nil
}

func (m *txManager) InTransaction(ctx context.Context, fn func(ctx context.Context, tx repositories.Transaction) error) error {
	t, err := m.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = t.Rollback() }()

	if err := fn(t.Context(), t); err != nil {
		return err
	}
	return t.Commit()
}

type principalRepo struct{ s *Store }

func (r *principalRepo) Create(_ context.Context, p *models.Principal) error {
	unlock, err := r.s.lock()
	if err != nil {
		return err
	}
	defer unlock()

	for _, existing := range r.s.principals {
		if sameIdentifier(existing.Email, p.Email) || sameIdentifier(existing.RegisterNumber, p.RegisterNumber) {
			return repositories.ErrConflict
		}
	}
	cp := *p
	r.s.principals[p.ID] = &cp
	return nil
}

func (r *principalRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Principal, error) {
	unlock, err := r.s.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	p, ok := r.s.principals[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *principalRepo) GetByIdentifier(_ context.Context, identifier string) (*models.Principal, error) {
	unlock, err := r.s.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	for _, p := range r.s.principals {
		if sameIdentifier(p.Email, &identifier) || sameIdentifier(p.RegisterNumber, &identifier) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (r *principalRepo) LockByID(ctx context.Context, id uuid.UUID) (*models.Principal, error) {
	return r.GetByID(ctx, id)
}

func (r *principalRepo) UpdatePasswordHash(_ context.Context, id uuid.UUID, passwordHash string) error {
	unlock, err := r.s.lock()
	if err != nil {
		return err
	}
	defer unlock()

	p, ok := r.s.principals[id]
	if !ok {
		return repositories.ErrNotFound
	}
	p.PasswordHash = passwordHash
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *principalRepo) GetGuardianLink(_ context.Context, studentRegisterNumber, contact string) (*models.GuardianLink, error) {
	unlock, err := r.s.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	for _, l := range r.s.links {
		guardian, ok := r.s.principals[l.GuardianID]
		if ok && guardian.IsActive && strings.EqualFold(l.StudentRegisterNumber, studentRegisterNumber) && l.Contact == contact {
			cp := l
			return &cp, nil
		}
	}
	return nil, repositories.ErrNotFound
}

type sessionRepo struct{ s *Store }

func (r *sessionRepo) Create(_ context.Context, sess *models.Session) error {
	unlock, err := r.s.lock()
	if err != nil {
		return err
	}
	defer unlock()

	cp := *sess
	r.s.sessions[sess.ID] = &cp
	return nil
}

func (r *sessionRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Session, error) {
	unlock, err := r.s.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	sess, ok := r.s.sessions[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *sess
	return &cp, nil
}

func (r *sessionRepo) ListLive(_ context.Context, principalID uuid.UUID, now time.Time) ([]*models.Session, error) {
	unlock, err := r.s.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	var out []*models.Session
	for _, sess := range r.s.sessions {
		if sess.PrincipalID == principalID && sess.IsLive(now) {
			cp := *sess
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *sessionRepo) MarkRevoked(_ context.Context, ids []uuid.UUID, revokedAt time.Time) (int64, error) {
	unlock, err := r.s.lock()
	if err != nil {
		return 0, err
	}
	defer unlock()

	var n int64
	for _, id := range ids {
		if sess, ok := r.s.sessions[id]; ok && sess.RevokedAt == nil {
			at := revokedAt
			sess.RevokedAt = &at
			n++
		}
	}
	return n, nil
}

func (r *sessionRepo) DeleteExpired(_ context.Context, cutoff time.Time) (int64, error) {
	unlock, err := r.s.lock()
	if err != nil {
		return 0, err
	}
	defer unlock()

	var n int64
	for id, sess := range r.s.sessions {
		if sess.ExpiresAt.Before(cutoff) {
			delete(r.s.sessions, id)
			n++
		}
	}
	return n, nil
}

type revocationRepo struct{ s *Store }

func (r *revocationRepo) Revoke(_ context.Context, entries ...*models.RevocationEntry) error {
	unlock, err := r.s.lock()
	if err != nil {
		return err
	}
	defer unlock()

	for _, e := range entries {
		if _, exists := r.s.revocations[e.TokenID]; !exists {
			cp := *e
			r.s.revocations[e.TokenID] = &cp
		}
	}
	return nil
}

func (r *revocationRepo) AnyRevoked(_ context.Context, ids ...uuid.UUID) (bool, error) {
	unlock, err := r.s.lock()
	if err != nil {
		return false, err
	}
	defer unlock()

	for _, id := range ids {
		if _, ok := r.s.revocations[id]; ok {
			return true, nil
		}
	}
	return false, nil
}

func (r *revocationRepo) DeleteExpired(_ context.Context, cutoff time.Time) (int64, error) {
	unlock, err := r.s.lock()
	if err != nil {
		return 0, err
	}
	defer unlock()

	var n int64
	for id, e := range r.s.revocations {
		if e.ExpiresAt.Before(cutoff) {
			delete(r.s.revocations, id)
			n++
		}
	}
	return n, nil
}

type otpRepo struct{ s *Store }

func (r *otpRepo) Create(_ context.Context, otp *models.GuardianOTP) error {
	unlock, err := r.s.lock()
	if err != nil {
		return err
	}
	defer unlock()

	cp := *otp
	r.s.otps[otp.ID] = &cp
	return nil
}

func (r *otpRepo) GetLatest(_ context.Context, studentRegisterNumber, contact string) (*models.GuardianOTP, error) {
	unlock, err := r.s.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	var latest *models.GuardianOTP
	for _, o := range r.s.otps {
		if o.Used || o.Contact != contact || !strings.EqualFold(o.StudentRegisterNumber, studentRegisterNumber) {
			continue
		}
		if latest == nil || o.CreatedAt.After(latest.CreatedAt) {
			latest = o
		}
	}
	if latest == nil {
		return nil, repositories.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (r *otpRepo) ConsumeAttempt(_ context.Context, id uuid.UUID, maxAttempts int, now time.Time) (int, error) {
	unlock, err := r.s.lock()
	if err != nil {
		return 0, err
	}
	defer unlock()

	o, ok := r.s.otps[id]
	if !ok || !o.Usable(now, maxAttempts) {
		return 0, repositories.ErrNotFound
	}
	o.Attempts++
	return o.Attempts, nil
}

func (r *otpRepo) MarkUsed(_ context.Context, id uuid.UUID) error {
	unlock, err := r.s.lock()
	if err != nil {
		return err
	}
	defer unlock()

	o, ok := r.s.otps[id]
	if !ok || o.Used {
		return repositories.ErrNotFound
	}
	o.Used = true
	return nil
}

func (r *otpRepo) DeleteExpired(_ context.Context, cutoff time.Time) (int64, error) {
	unlock, err := r.s.lock()
	if err != nil {
		return 0, err
	}
	defer unlock()

	var n int64
	for id, o := range r.s.otps {
		if o.ExpiresAt.Before(cutoff) {
			delete(r.s.otps, id)
			n++
		}
	}
	return n, nil
}

type eventRepo struct{ s *Store }

func (r *eventRepo) Insert(_ context.Context, e *models.AuthEvent) error {
	unlock, err := r.s.lock()
	if err != nil {
		return err
	}
	defer unlock()

	cp := *e
	r.s.events = append(r.s.events, &cp)
	return nil
}

func (r *eventRepo) ListByPrincipal(_ context.Context, principalID uuid.UUID, limit, offset int) ([]*models.AuthEvent, error) {
	unlock, err := r.s.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	var matched []*models.AuthEvent
	for i := len(r.s.events) - 1; i >= 0; i-- {
		e := r.s.events[i]
		if e.PrincipalID != nil && *e.PrincipalID == principalID {
			matched = append(matched, e)
		}
	}
	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

func sameIdentifier(a, b *string) bool {
	return a != nil && b != nil && *a != "" && strings.EqualFold(*a, *b)
}
