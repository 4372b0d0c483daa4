// Package memory is an in-process Ledger Store used by tests and by
// deployments started without DATABASE_URL.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"leverledger/internal/domain"
)

type tables struct {
	users     map[uuid.UUID]domain.User
	positions map[uuid.UUID]domain.Position
	requests  map[domain.RequestKind]map[uuid.UUID]domain.Request
	prices    map[string]decimal.Decimal
}

func newTables() *tables {
	return &tables{
		users:     make(map[uuid.UUID]domain.User),
		positions: make(map[uuid.UUID]domain.Position),
		requests: map[domain.RequestKind]map[uuid.UUID]domain.Request{
			domain.KindDeposit:    {},
			domain.KindWithdrawal: {},
		},
		prices: make(map[string]decimal.Decimal),
	}
}

func (t *tables) clone() *tables {
	c := newTables()
	for k, v := range t.users {
		c.users[k] = v
	}
	for k, v := range t.positions {
		c.positions[k] = v
	}
	for kind, reqs := range t.requests {
		for k, v := range reqs {
			c.requests[kind][k] = v
		}
	}
	for k, v := range t.prices {
		c.prices[k] = v
	}
	return c
}

// Store implements domain.Store in memory. A transaction holds the store
// mutex for its whole duration, so transactions are fully serialized.
type Store struct {
	mu   *sync.Mutex
	db   *tables
	inTx bool
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{mu: &sync.Mutex{}, db: newTables()}
}

func (s *Store) lock() {
	if !s.inTx {
		s.mu.Lock()
	}
}

func (s *Store) unlock() {
	if !s.inTx {
		s.mu.Unlock()
	}
}

// WithinTx runs fn with exclusive access and restores the previous state if fn fails
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.Store) error) error {
	if s.inTx {
		return fn(ctx, s)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.db.clone()
	tx := &Store{mu: s.mu, db: s.db, inTx: true}
	if err := fn(ctx, tx); err != nil {
		*s.db = *snapshot
		return err
	}
	return nil
}

func (s *Store) Users() domain.UserRepository         { return userRepo{s} }
func (s *Store) Positions() domain.PositionRepository { return positionRepo{s} }
func (s *Store) Requests() domain.RequestRepository   { return requestRepo{s} }
func (s *Store) Prices() domain.PriceRepository       { return priceRepo{s} }

type userRepo struct{ s *Store }

func sameEmail(a, b string) bool {
	return a != "" && strings.EqualFold(a, b)
}

func (r userRepo) Create(ctx context.Context, user *domain.User) error {
	r.s.lock()
	defer r.s.unlock()

	for _, u := range r.s.db.users {
		if u.ID == user.ID || u.Username == user.Username || sameEmail(u.Email, user.Email) {
			return domain.ErrAlreadyExists
		}
	}
	r.s.db.users[user.ID] = *user
	return nil
}

func (r userRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	r.s.lock()
	defer r.s.unlock()

	u, ok := r.s.db.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &u, nil
}

func (r userRepo) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return r.GetByID(ctx, id)
}

func (r userRepo) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	r.s.lock()
	defer r.s.unlock()

	for _, u := range r.s.db.users {
		if u.Username == username {
			return &u, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r userRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.s.lock()
	defer r.s.unlock()

	for _, u := range r.s.db.users {
		if sameEmail(u.Email, email) {
			return &u, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r userRepo) GetAll(ctx context.Context) ([]*domain.User, error) {
	r.s.lock()
	defer r.s.unlock()

	users := make([]*domain.User, 0, len(r.s.db.users))
	for _, u := range r.s.db.users {
		u := u
		users = append(users, &u)
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	return users, nil
}

func (r userRepo) Update(ctx context.Context, user *domain.User) error {
	r.s.lock()
	defer r.s.unlock()

	if _, ok := r.s.db.users[user.ID]; !ok {
		return domain.ErrNotFound
	}
	for id, u := range r.s.db.users {
		if id != user.ID && (u.Username == user.Username || sameEmail(u.Email, user.Email)) {
			return domain.ErrAlreadyExists
		}
	}
	updated := *user
	updated.UpdatedAt = time.Now()
	r.s.db.users[user.ID] = updated
	return nil
}

func (r userRepo) UpdateBalance(ctx context.Context, userID uuid.UUID, balance decimal.Decimal) error {
	r.s.lock()
	defer r.s.unlock()

	u, ok := r.s.db.users[userID]
	if !ok {
		return domain.ErrNotFound
	}
	u.Balance = balance
	u.UpdatedAt = time.Now()
	r.s.db.users[userID] = u
	return nil
}

func (r userRepo) GetExpiredBonuses(ctx context.Context, now time.Time) ([]*domain.User, error) {
	r.s.lock()
	defer r.s.unlock()

	var users []*domain.User
	for _, u := range r.s.db.users {
		if u.HasBonus && u.BonusExpiresAt != nil && !u.BonusExpiresAt.After(now) {
			u := u
			users = append(users, &u)
		}
	}
	return users, nil
}

type positionRepo struct{ s *Store }

func (r positionRepo) Save(ctx context.Context, position *domain.Position) error {
	r.s.lock()
	defer r.s.unlock()

	if _, ok := r.s.db.positions[position.ID]; ok {
		return domain.ErrAlreadyExists
	}
	r.s.db.positions[position.ID] = *position
	return nil
}

func (r positionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Position, error) {
	r.s.lock()
	defer r.s.unlock()

	p, ok := r.s.db.positions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

func (r positionRepo) filter(keep func(p *domain.Position) bool) []*domain.Position {
	var out []*domain.Position
	for _, p := range r.s.db.positions {
		p := p
		if keep(&p) {
			out = append(out, &p)
		}
	}
	return out
}

func newestFirst(positions []*domain.Position) {
	sort.Slice(positions, func(i, j int) bool {
		if positions[i].OpenedAt.Equal(positions[j].OpenedAt) {
			return positions[i].ID.String() > positions[j].ID.String()
		}
		return positions[i].OpenedAt.After(positions[j].OpenedAt)
	})
}

func (r positionRepo) GetByUserID(ctx context.Context, userID uuid.UUID) ([]*domain.Position, error) {
	r.s.lock()
	defer r.s.unlock()

	positions := r.filter(func(p *domain.Position) bool { return p.UserID == userID })
	newestFirst(positions)
	return positions, nil
}

func (r positionRepo) GetOpenPositions(ctx context.Context) ([]*domain.Position, error) {
	r.s.lock()
	defer r.s.unlock()

	positions := r.filter(func(p *domain.Position) bool { return p.IsOpen() })
	sort.Slice(positions, func(i, j int) bool {
		if positions[i].OpenedAt.Equal(positions[j].OpenedAt) {
			return positions[i].ID.String() < positions[j].ID.String()
		}
		return positions[i].OpenedAt.Before(positions[j].OpenedAt)
	})
	return positions, nil
}

func (r positionRepo) GetAll(ctx context.Context) ([]*domain.Position, error) {
	r.s.lock()
	defer r.s.unlock()

	positions := r.filter(func(*domain.Position) bool { return true })
	newestFirst(positions)
	return positions, nil
}

func (r positionRepo) CloseIfOpen(ctx context.Context, position *domain.Position) (bool, error) {
	r.s.lock()
	defer r.s.unlock()

	stored, ok := r.s.db.positions[position.ID]
	if !ok {
		return false, domain.ErrNotFound
	}
	if !stored.IsOpen() {
		return false, nil
	}
	stored.Status = position.Status
	stored.ClosePrice = position.ClosePrice
	stored.ProfitLoss = position.ProfitLoss
	stored.ClosedAt = position.ClosedAt
	stored.CloseReason = position.CloseReason
	r.s.db.positions[position.ID] = stored
	return true, nil
}

type requestRepo struct{ s *Store }

func (r requestRepo) table(kind domain.RequestKind) map[uuid.UUID]domain.Request {
	t, ok := r.s.db.requests[kind]
	if !ok {
		t = make(map[uuid.UUID]domain.Request)
		r.s.db.requests[kind] = t
	}
	return t
}

func (r requestRepo) Save(ctx context.Context, req *domain.Request) error {
	r.s.lock()
	defer r.s.unlock()

	t := r.table(req.Kind)
	if _, ok := t[req.ID]; ok {
		return domain.ErrAlreadyExists
	}
	t[req.ID] = *req
	return nil
}

func (r requestRepo) GetByID(ctx context.Context, kind domain.RequestKind, id uuid.UUID) (*domain.Request, error) {
	r.s.lock()
	defer r.s.unlock()

	req, ok := r.table(kind)[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &req, nil
}

func (r requestRepo) list(kind domain.RequestKind, keep func(*domain.Request) bool, oldestFirst bool) []*domain.Request {
	var out []*domain.Request
	for _, req := range r.table(kind) {
		req := req
		if keep(&req) {
			out = append(out, &req)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if oldestFirst {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (r requestRepo) GetByUserID(ctx context.Context, kind domain.RequestKind, userID uuid.UUID) ([]*domain.Request, error) {
	r.s.lock()
	defer r.s.unlock()

	return r.list(kind, func(req *domain.Request) bool { return req.UserID == userID }, false), nil
}

func (r requestRepo) GetPending(ctx context.Context, kind domain.RequestKind) ([]*domain.Request, error) {
	r.s.lock()
	defer r.s.unlock()

	return r.list(kind, func(req *domain.Request) bool { return req.IsPending() }, true), nil
}

func (r requestRepo) GetRecent(ctx context.Context, kind domain.RequestKind, limit int) ([]*domain.Request, error) {
	r.s.lock()
	defer r.s.unlock()

	reqs := r.list(kind, func(*domain.Request) bool { return true }, false)
	if limit > 0 && len(reqs) > limit {
		reqs = reqs[:limit]
	}
	return reqs, nil
}

func (r requestRepo) FinalizeIfPending(ctx context.Context, req *domain.Request) (bool, error) {
	r.s.lock()
	defer r.s.unlock()

	t := r.table(req.Kind)
	stored, ok := t[req.ID]
	if !ok {
		return false, domain.ErrNotFound
	}
	if !stored.IsPending() {
		return false, nil
	}
	stored.Status = req.Status
	stored.RejectionReason = req.RejectionReason
	stored.DecidedAt = req.DecidedAt
	t[req.ID] = stored
	return true, nil
}

type priceRepo struct{ s *Store }

func (r priceRepo) GetAll(ctx context.Context) (map[string]decimal.Decimal, error) {
	r.s.lock()
	defer r.s.unlock()

	prices := make(map[string]decimal.Decimal, len(r.s.db.prices))
	for k, v := range r.s.db.prices {
		prices[k] = v
	}
	return prices, nil
}

func (r priceRepo) Upsert(ctx context.Context, symbol string, price decimal.Decimal, at time.Time) error {
	r.s.lock()
	defer r.s.unlock()

	r.s.db.prices[symbol] = price
	return nil
}
