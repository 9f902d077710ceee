// Package firms provides tenant (law firm) lookup for the authentication
// core. A firm is the unit of tenant isolation: every tenant-bound
// principal belongs to exactly one firm, identified externally by slug.
package firms

import (
	"context"
	"errors"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Firm statuses.
const (
	StatusActive    = "active"
	StatusSuspended = "suspended"
)

// ErrNotFound indicates no firm matches the identifier or slug.
var ErrNotFound = errors.New("firm not found")

// Firm is a tenant organization.
type Firm struct {
	ID        string    `json:"id"`
	Slug      string    `json:"slug"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Active reports whether the firm may be used as a tenant scope.
func (f *Firm) Active() bool {
	return f != nil && f.Status == StatusActive
}

// Store is the durable firm lookup.
type Store interface {
	FindByID(ctx context.Context, id string) (*Firm, error)
	FindBySlug(ctx context.Context, slug string) (*Firm, error)
}

const defaultCacheSize = 512

// Service fronts the store with a small LRU cache. Firm records sit on the
// hot path of every identity extraction (principal firm-slug resolution),
// and they change rarely.
type Service struct {
	store  Store
	byID   *lru.Cache[string, *Firm]
	bySlug *lru.Cache[string, *Firm]
}

// NewService creates a caching firm service.
func NewService(store Store) (*Service, error) {
	byID, err := lru.New[string, *Firm](defaultCacheSize)
	if err != nil {
		return nil, err
	}
	bySlug, err := lru.New[string, *Firm](defaultCacheSize)
	if err != nil {
		return nil, err
	}
	return &Service{store: store, byID: byID, bySlug: bySlug}, nil
}

// FindByID returns the firm, consulting the cache first.
func (s *Service) FindByID(ctx context.Context, id string) (*Firm, error) {
	if firm, ok := s.byID.Get(id); ok {
		return firm, nil
	}
	firm, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.put(firm)
	return firm, nil
}

// FindBySlug returns the firm, consulting the cache first.
func (s *Service) FindBySlug(ctx context.Context, slug string) (*Firm, error) {
	if firm, ok := s.bySlug.Get(slug); ok {
		return firm, nil
	}
	firm, err := s.store.FindBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	s.put(firm)
	return firm, nil
}

// Invalidate evicts a firm after an out-of-band change.
func (s *Service) Invalidate(firm *Firm) {
	if firm == nil {
		return
	}
	s.byID.Remove(firm.ID)
	s.bySlug.Remove(firm.Slug)
}

func (s *Service) put(firm *Firm) {
	s.byID.Add(firm.ID, firm)
	s.bySlug.Add(firm.Slug, firm)
}
