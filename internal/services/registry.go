package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/lgrondin/tchatbox-backend/internal/models"
	"github.com/lgrondin/tchatbox-backend/internal/store"
	"github.com/lgrondin/tchatbox-backend/pkg/utils"
)

// Registry is the authoritative in-memory copy of all user records. Every
// mutation runs under a per-pseudo lock held across the whole credential
// hashing + mutate + persist sequence, so concurrent events cannot interleave
// on the same record. Writes persist through the store before they are
// committed in memory; a failed write leaves memory untouched.
type Registry struct {
	store store.UserStore

	mu    sync.RWMutex
	users map[string]*models.User
	locks map[string]*sync.Mutex
}

func NewRegistry(us store.UserStore) *Registry {
	return &Registry{
		store: us,
		users: make(map[string]*models.User),
		locks: make(map[string]*sync.Mutex),
	}
}

// Load warms the registry from the durable store. Called once at startup.
func (r *Registry) Load(ctx context.Context) error {
	users, err := r.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("registry load: %w", err)
	}
	r.mu.Lock()
	for _, u := range users {
		r.users[u.Pseudo] = u
	}
	r.mu.Unlock()
	log.Printf("registry: loaded %d users", len(users))
	return nil
}

// keyLock returns the mutex guarding one pseudo, creating it on first use.
// Lock entries are never removed; accounts are never deleted either.
func (r *Registry) keyLock(pseudo string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.locks[pseudo]
	if !ok {
		m = &sync.Mutex{}
		r.locks[pseudo] = m
	}
	return m
}

func (r *Registry) get(pseudo string) (*models.User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[pseudo]
	return u, ok
}

func (r *Registry) commit(u *models.User) {
	r.mu.Lock()
	r.users[u.Pseudo] = u
	r.mu.Unlock()
}

// Get returns a snapshot of one user. Mutating the snapshot has no effect.
func (r *Registry) Get(pseudo string) (*models.User, bool) {
	u, ok := r.get(pseudo)
	if !ok {
		return nil, false
	}
	return u.Clone(), true
}

// RegisterProfile carries the optional profile fields accepted at signup.
type RegisterProfile struct {
	Age    int
	Sex    string
	Avatar string
}

// Register creates a new account. The key lock spans the duplicate check,
// the password hashing and the durable write, closing the race where two
// concurrent registrations both observe "not found".
func (r *Registry) Register(ctx context.Context, pseudo, password string, profile RegisterProfile) (*models.User, error) {
	if err := utils.ValidatePseudo(pseudo); err != nil {
		return nil, err
	}
	if err := utils.ValidatePassword(password); err != nil {
		return nil, err
	}

	lock := r.keyLock(pseudo)
	lock.Lock()
	defer lock.Unlock()

	if _, exists := r.get(pseudo); exists {
		return nil, ErrDuplicatePseudo
	}

	digest, err := utils.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &models.User{
		Pseudo:         pseudo,
		PasswordDigest: digest,
		JoinedAt:       time.Now().UTC(),
		Age:            profile.Age,
		Sex:            profile.Sex,
		Avatar:         profile.Avatar,
	}

	if err := r.store.Upsert(ctx, u); err != nil {
		return nil, err
	}
	r.commit(u)
	return u.Clone(), nil
}

// Authenticate verifies credentials for login. A banned account fails with
// ErrBanned regardless of credential correctness; everything else that goes
// wrong is ErrBadCredentials, never revealing which field was off.
func (r *Registry) Authenticate(ctx context.Context, pseudo, password string) (*models.User, error) {
	lock := r.keyLock(pseudo)
	lock.Lock()
	defer lock.Unlock()

	u, ok := r.get(pseudo)
	if !ok {
		return nil, ErrBadCredentials
	}
	if u.Banned {
		return nil, ErrBanned
	}

	valid, err := utils.VerifyPassword(password, u.PasswordDigest)
	if err != nil || !valid {
		return nil, ErrBadCredentials
	}
	return u.Clone(), nil
}

// Update applies fn to a copy of the record under the key lock, persists the
// copy and commits it. fn returning ErrNoChange skips both persist and
// commit. The updated snapshot is returned.
func (r *Registry) Update(ctx context.Context, pseudo string, fn func(u *models.User) error) (*models.User, error) {
	lock := r.keyLock(pseudo)
	lock.Lock()
	defer lock.Unlock()

	cur, ok := r.get(pseudo)
	if !ok {
		return nil, ErrUnknownUser
	}

	next := cur.Clone()
	if err := fn(next); err != nil {
		if errors.Is(err, ErrNoChange) {
			return cur.Clone(), nil
		}
		return nil, err
	}

	if err := r.store.Upsert(ctx, next); err != nil {
		return nil, err
	}
	r.commit(next)
	return next.Clone(), nil
}

// UpdatePair applies fn to two records under both key locks, taken in sorted
// order so concurrent pair updates cannot deadlock. The first record must
// exist; the second may be nil (fn decides whether that is acceptable).
// ErrNoChange from fn skips persistence for both.
func (r *Registry) UpdatePair(ctx context.Context, a, b string, fn func(ua, ub *models.User) error) (*models.User, *models.User, error) {
	if a == b {
		return nil, nil, fmt.Errorf("update pair: identical pseudos %q", a)
	}

	order := []string{a, b}
	sort.Strings(order)
	for _, p := range order {
		l := r.keyLock(p)
		l.Lock()
		defer l.Unlock()
	}

	curA, ok := r.get(a)
	if !ok {
		return nil, nil, ErrUnknownUser
	}
	nextA := curA.Clone()

	var nextB *models.User
	if curB, ok := r.get(b); ok {
		nextB = curB.Clone()
	}

	if err := fn(nextA, nextB); err != nil {
		if errors.Is(err, ErrNoChange) {
			return nil, nil, nil
		}
		return nil, nil, err
	}

	if err := r.store.Upsert(ctx, nextA); err != nil {
		return nil, nil, err
	}
	if nextB != nil {
		if err := r.store.Upsert(ctx, nextB); err != nil {
			// A is durable but neither side is committed in memory; the next
			// successful write reconverges. Surface as retryable.
			return nil, nil, err
		}
	}

	r.commit(nextA)
	if nextB != nil {
		r.commit(nextB)
	}
	return nextA.Clone(), cloneOrNil(nextB), nil
}

// Statuses returns pseudo -> status for every known user.
func (r *Registry) Statuses() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.users))
	for p, u := range r.users {
		out[p] = u.Status
	}
	return out
}

// Avatars returns pseudo -> avatar URI for every user that has one.
func (r *Registry) Avatars() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string)
	for p, u := range r.users {
		if u.Avatar != "" {
			out[p] = u.Avatar
		}
	}
	return out
}

func cloneOrNil(u *models.User) *models.User {
	if u == nil {
		return nil
	}
	return u.Clone()
}
