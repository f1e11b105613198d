package wallet

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github/chapool/embedded-wallet/internal/protocol"
	"github/chapool/embedded-wallet/internal/util"
)

// Service keeps the frame's account book and the per origin grants of
// connected apps. State lives in memory for the lifetime of the frame.
type Service interface {
	// AddAccount stores a derived account. Adding an index twice replaces
	// its label.
	AddAccount(ctx context.Context, account *Account) (*Account, error)

	// GetAccount gets an account by address
	GetAccount(ctx context.Context, address string) (*Account, error)

	// ListAccounts lists accounts ordered by index
	ListAccounts(ctx context.Context) []*Account

	// NextIndex returns the lowest index not yet used
	NextIndex(ctx context.Context) uint32

	// Grant allows origin to see addresses and selects the first one.
	Grant(ctx context.Context, origin string, appName string, addresses []string) (*Grant, error)

	// GetGrant gets the grant of origin
	GetGrant(ctx context.Context, origin string) (*Grant, bool)

	// SelectAccount changes the account selected for origin, adding it to
	// the grant when missing.
	SelectAccount(ctx context.Context, origin string, address string) (*Account, error)

	// Revoke forgets the grant of origin
	Revoke(ctx context.Context, origin string)

	// RevokeAll forgets every grant and returns the affected origins.
	RevokeAll(ctx context.Context) []string
}

type service struct {
	mu       sync.RWMutex
	accounts map[uint32]*Account
	grants   map[string]*Grant
	now      func() time.Time
}

// NewService creates an empty account book
//
//nolint:ireturn // Returning interface is intentional for dependency injection
func NewService() Service {
	return &service{
		accounts: make(map[uint32]*Account),
		grants:   make(map[string]*Grant),
		now:      time.Now,
	}
}

func (s *service) AddAccount(ctx context.Context, account *Account) (*Account, error) {
	if account == nil || account.Address == "" {
		return nil, errors.Wrap(protocol.ErrInvalidPayload, "account has no address")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.accounts[account.Index]; ok {
		if existing.Address != account.Address {
			return nil, errors.Errorf("index %d already holds %s", account.Index, existing.Address)
		}
		if account.Label != "" {
			existing.Label = account.Label
		}
		return clone(existing), nil
	}

	stored := clone(account)
	if stored.Label == "" {
		stored.Label = fmt.Sprintf("Account %d", stored.Index+1)
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = s.now()
	}
	s.accounts[stored.Index] = stored

	util.LogFromContext(ctx).Debug().Uint32("index", stored.Index).Str("address", stored.Address).Msg("Account added")

	return clone(stored), nil
}

func (s *service) GetAccount(_ context.Context, address string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acc := s.byAddress(address)
	if acc == nil {
		return nil, errors.Wrapf(protocol.ErrAccountNotFound, "no account %s", address)
	}

	return clone(acc), nil
}

func (s *service) byAddress(address string) *Account {
	for _, acc := range s.accounts {
		if acc.Address == address {
			return acc
		}
	}

	return nil
}

func (s *service) ListAccounts(_ context.Context) []*Account {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Account, 0, len(s.accounts))
	for _, acc := range s.accounts {
		out = append(out, clone(acc))
	}
	slices.SortFunc(out, func(a, b *Account) int {
		return cmp.Compare(a.Index, b.Index)
	})

	return out
}

func (s *service) NextIndex(_ context.Context) uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var i uint32
	for {
		if _, ok := s.accounts[i]; !ok {
			return i
		}
		i++
	}
}

func (s *service) Grant(ctx context.Context, origin string, appName string, addresses []string) (*Grant, error) {
	if len(addresses) == 0 {
		return nil, errors.Wrap(protocol.ErrAccountNotFound, "no accounts to grant")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, addr := range addresses {
		if s.byAddress(addr) == nil {
			return nil, errors.Wrapf(protocol.ErrAccountNotFound, "no account %s", addr)
		}
	}

	grant := &Grant{
		Origin:    origin,
		AppName:   appName,
		Addresses: slices.Clone(addresses),
		Selected:  addresses[0],
		GrantedAt: s.now(),
	}
	s.grants[origin] = grant

	util.LogFromContext(ctx).Info().Str("origin", origin).Int("accounts", len(addresses)).Msg("Granted accounts to app")

	return cloneGrant(grant), nil
}

func (s *service) GetGrant(_ context.Context, origin string) (*Grant, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	grant, ok := s.grants[origin]
	if !ok {
		return nil, false
	}

	return cloneGrant(grant), true
}

func (s *service) SelectAccount(_ context.Context, origin string, address string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	grant, ok := s.grants[origin]
	if !ok {
		return nil, errors.Wrapf(protocol.ErrNotConnected, "%s is not connected", origin)
	}

	acc := s.byAddress(address)
	if acc == nil {
		return nil, errors.Wrapf(protocol.ErrAccountNotFound, "no account %s", address)
	}

	if !slices.Contains(grant.Addresses, address) {
		grant.Addresses = append(grant.Addresses, address)
	}
	grant.Selected = address

	return clone(acc), nil
}

func (s *service) Revoke(_ context.Context, origin string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.grants, origin)
}

func (s *service) RevokeAll(_ context.Context) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	origins := make([]string, 0, len(s.grants))
	for origin := range s.grants {
		origins = append(origins, origin)
	}
	s.grants = make(map[string]*Grant)

	return origins
}

func clone(a *Account) *Account {
	c := *a
	return &c
}

func cloneGrant(g *Grant) *Grant {
	c := *g
	c.Addresses = slices.Clone(g.Addresses)
	return &c
}
