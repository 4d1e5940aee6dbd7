// Package sender manages the outbound sender identities a tenant may use.
// Identities go through review (pending -> active/rejected) and only active
// ones resolve for sending. Resolution is read-mostly, so positive lookups
// are cached per process with a short TTL.
package sender

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/tembohq/sms-gateway/internal/model"
	"github.com/tembohq/sms-gateway/internal/repository"
)

var (
	ErrNotFound          = errors.New("sender identity not found or not active")
	ErrInvalidIdentifier = errors.New("sender identifier must be 1-11 alphanumeric characters")
	ErrExists            = errors.New("sender identity already registered")
)

var identifierRe = regexp.MustCompile(`^[A-Za-z0-9]{1,11}$`)

type cacheEntry struct {
	identity *model.SenderIdentity
	expires  time.Time
}

type Registry struct {
	repo      repository.SendersRepository
	defaultID string
	ttl       time.Duration

	mu    sync.Mutex
	cache map[string]cacheEntry
}

func NewRegistry(repo repository.SendersRepository, defaultID string, ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Registry{
		repo:      repo,
		defaultID: defaultID,
		ttl:       ttl,
		cache:     make(map[string]cacheEntry),
	}
}

// Resolve returns the active identity for sending. An empty identifier (or
// the reserved default) selects the tenant's default identity, created on
// first use. Anything not active resolves to ErrNotFound; there is no
// partially valid outcome.
func (r *Registry) Resolve(ctx context.Context, tenantID int64, identifier string) (*model.SenderIdentity, error) {
	if identifier == "" || identifier == r.defaultID {
		return r.repo.EnsureDefault(ctx, tenantID, r.defaultID)
	}

	key := cacheKey(tenantID, identifier)
	if s, ok := r.cached(key); ok {
		return s, nil
	}

	s, err := r.repo.GetActive(ctx, tenantID, identifier)
	if err != nil {
		return nil, fmt.Errorf("sender lookup: %w", err)
	}
	if s == nil {
		return nil, ErrNotFound
	}

	r.put(key, s)
	return s, nil
}

// Register files a new identity for review. It starts pending and cannot be
// used for sending until approved.
func (r *Registry) Register(ctx context.Context, tenantID int64, identifier, sampleContent string) (*model.SenderIdentity, error) {
	if !identifierRe.MatchString(identifier) {
		return nil, ErrInvalidIdentifier
	}
	existing, err := r.repo.Get(ctx, tenantID, identifier)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, ErrExists
	}
	return r.repo.Insert(ctx, tenantID, identifier, sampleContent)
}

// Approve activates a pending identity. Approving an already-active identity
// is a no-op that leaves the original review record intact.
func (r *Registry) Approve(ctx context.Context, tenantID int64, identifier, reviewer string) (*model.SenderIdentity, error) {
	return r.review(ctx, tenantID, identifier, model.SenderActive, reviewer, "")
}

// Reject marks the identity rejected with the reviewer's reason.
func (r *Registry) Reject(ctx context.Context, tenantID int64, identifier, reviewer, reason string) (*model.SenderIdentity, error) {
	return r.review(ctx, tenantID, identifier, model.SenderRejected, reviewer, reason)
}

func (r *Registry) review(ctx context.Context, tenantID int64, identifier string, status model.SenderStatus, reviewer, reason string) (*model.SenderIdentity, error) {
	existing, err := r.repo.Get(ctx, tenantID, identifier)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, ErrNotFound
	}
	if existing.Status == status {
		return existing, nil
	}

	if _, err := r.repo.SetStatus(ctx, tenantID, identifier, status, reviewer, reason); err != nil {
		return nil, err
	}
	r.invalidate(cacheKey(tenantID, identifier))

	return r.repo.Get(ctx, tenantID, identifier)
}

func (r *Registry) List(ctx context.Context, tenantID int64) ([]model.SenderIdentity, error) {
	return r.repo.ListByTenant(ctx, tenantID)
}

func (r *Registry) cached(key string) (*model.SenderIdentity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.cache[key]
	if !ok || time.Now().After(e.expires) {
		delete(r.cache, key)
		return nil, false
	}
	return e.identity, true
}

func (r *Registry) put(key string, s *model.SenderIdentity) {
	r.mu.Lock()
	r.cache[key] = cacheEntry{identity: s, expires: time.Now().Add(r.ttl)}
	r.mu.Unlock()
}

func (r *Registry) invalidate(key string) {
	r.mu.Lock()
	delete(r.cache, key)
	r.mu.Unlock()
}

func cacheKey(tenantID int64, identifier string) string {
	return fmt.Sprintf("%d:%s", tenantID, identifier)
}
