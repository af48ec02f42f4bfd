// Package memstore is an in-memory implementation of the repository
// interfaces. All repositories share one lock, so every operation is
// atomic in the same way the Postgres transactions are.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"smsdispatch/internal/models"
	"smsdispatch/internal/repository"
)

// Store holds every table
type Store struct {
	mu  sync.Mutex
	now func() time.Time
	seq int64

	accounts  map[int64]*models.Account
	ledger    []*models.LedgerEntry
	ledgerKey map[string]*models.LedgerEntry
	contacts  map[int64]*models.Contact
	tags      map[int64]map[int64]bool // contact -> tags
	lists     map[int64]map[int64]bool // list -> contacts
	campaigns map[int64]*models.Campaign
	targets   map[int64]*models.Target
	jobs      map[int64]*models.QuickSendJob
	overrides map[int64]*models.GatewayOverride // 0 is the system scope
	pricing   map[string]float64
	reports   []*models.DeliveryReport
}

// New creates an empty store
func New() *Store {
	return &Store{
		now:       time.Now,
		accounts:  make(map[int64]*models.Account),
		ledgerKey: make(map[string]*models.LedgerEntry),
		contacts:  make(map[int64]*models.Contact),
		tags:      make(map[int64]map[int64]bool),
		lists:     make(map[int64]map[int64]bool),
		campaigns: make(map[int64]*models.Campaign),
		targets:   make(map[int64]*models.Target),
		jobs:      make(map[int64]*models.QuickSendJob),
		overrides: make(map[int64]*models.GatewayOverride),
		pricing:   make(map[string]float64),
	}
}

// SetClock replaces the time source used for timestamps
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) nextID() int64 {
	s.seq++
	return s.seq
}

// stamp returns a strictly increasing timestamp so FIFO order is stable
func (s *Store) stamp() time.Time {
	return s.now().Add(time.Duration(s.seq) * time.Microsecond)
}

// Accounts returns the account repository
func (s *Store) Accounts() repository.AccountRepository { return accountRepo{s} }

// Ledger returns the ledger repository
func (s *Store) Ledger() repository.LedgerRepository { return ledgerRepo{s} }

// Contacts returns the contact repository
func (s *Store) Contacts() repository.ContactRepository { return contactRepo{s} }

// Campaigns returns the campaign repository
func (s *Store) Campaigns() repository.CampaignRepository { return campaignRepo{s} }

// Targets returns the target repository
func (s *Store) Targets() repository.TargetRepository { return targetRepo{s} }

// Jobs returns the quick-send job repository
func (s *Store) Jobs() repository.JobRepository { return jobRepo{s} }

// Overrides returns the gateway override repository
func (s *Store) Overrides() repository.OverrideRepository { return overrideRepo{s} }

// Pricing returns the country pricing repository
func (s *Store) Pricing() repository.PricingRepository { return pricingRepo{s} }

// DeliveryReports returns the delivery report repository
func (s *Store) DeliveryReports() repository.DeliveryReportRepository { return reportRepo{s} }

// LedgerEntries returns a copy of every ledger entry in insertion order
func (s *Store) LedgerEntries() []models.LedgerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.LedgerEntry, len(s.ledger))
	for i, e := range s.ledger {
		out[i] = *e
	}
	return out
}

// Reports returns a copy of every stored delivery report
func (s *Store) Reports() []models.DeliveryReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.DeliveryReport, len(s.reports))
	for i, r := range s.reports {
		out[i] = *r
	}
	return out
}

// accounts

type accountRepo struct{ s *Store }

func (r accountRepo) Create(ctx context.Context, a *models.Account) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a.ID = r.s.nextID()
	a.Credits = 0
	a.CreatedAt = r.s.stamp()
	cp := *a
	r.s.accounts[a.ID] = &cp
	return nil
}

func (r accountRepo) GetByID(ctx context.Context, id int64) (*models.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

// ledger

type ledgerRepo struct{ s *Store }

func (r ledgerRepo) Apply(ctx context.Context, e *models.LedgerEntry) (bool, error) {
	if e.Amount < 0 {
		return false, fmt.Errorf("ledger amount must not be negative: %d", e.Amount)
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	a, ok := r.s.accounts[e.AccountID]
	if !ok {
		return false, repository.ErrNotFound
	}
	if _, exists := r.s.ledgerKey[e.IdempotencyKey]; exists {
		return false, nil
	}

	balance := a.Credits
	switch e.Kind {
	case models.LedgerDebit:
		if e.Amount > balance {
			return false, repository.ErrInsufficientCredits
		}
		balance -= e.Amount
	case models.LedgerRefund, models.LedgerGrant:
		balance += e.Amount
	default:
		return false, fmt.Errorf("unknown ledger kind: %s", e.Kind)
	}

	a.Credits = balance
	e.ID = r.s.nextID()
	e.BalanceAfter = balance
	e.CreatedAt = r.s.stamp()
	cp := *e
	r.s.ledger = append(r.s.ledger, &cp)
	r.s.ledgerKey[e.IdempotencyKey] = &cp
	return true, nil
}

func (r ledgerRepo) GetByKey(ctx context.Context, key string) (*models.LedgerEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.ledgerKey[key]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (r ledgerRepo) ListByAccount(ctx context.Context, accountID int64, limit, offset int) ([]*models.LedgerEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*models.LedgerEntry{}
	for i := len(r.s.ledger) - 1; i >= 0; i-- {
		if e := r.s.ledger[i]; e.AccountID == accountID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return paginate(out, limit, offset), nil
}

func (r ledgerRepo) ListUnrefunded(ctx context.Context, limit int) ([]*models.LedgerEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	refunded := make(map[string]bool)
	for _, e := range r.s.ledger {
		if e.Kind == models.LedgerRefund && e.TargetID != nil {
			refunded[fmt.Sprintf("%d/%d", *e.TargetID, e.BillingEpoch)] = true
		}
	}

	out := []*models.LedgerEntry{}
	for _, e := range r.s.ledger {
		if e.Kind != models.LedgerDebit || e.TargetID == nil {
			continue
		}
		t, ok := r.s.targets[*e.TargetID]
		if !ok || refunded[fmt.Sprintf("%d/%d", *e.TargetID, e.BillingEpoch)] {
			continue
		}
		if t.Status == models.TargetStatusFailed || t.Status == models.TargetStatusCanceled || t.BillingEpoch > e.BillingEpoch {
			cp := *e
			out = append(out, &cp)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return items[:0]
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// contacts

type contactRepo struct{ s *Store }

func (r contactRepo) Create(ctx context.Context, c *models.Contact) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c.ID = r.s.nextID()
	c.CreatedAt = r.s.stamp()
	cp := *c
	r.s.contacts[c.ID] = &cp
	return nil
}

func (r contactRepo) Tag(ctx context.Context, contactID int64, tagIDs ...int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.tags[contactID] == nil {
		r.s.tags[contactID] = make(map[int64]bool)
	}
	for _, id := range tagIDs {
		r.s.tags[contactID][id] = true
	}
	return nil
}

func (r contactRepo) AddToList(ctx context.Context, listID int64, contactIDs ...int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.lists[listID] == nil {
		r.s.lists[listID] = make(map[int64]bool)
	}
	for _, id := range contactIDs {
		r.s.lists[listID][id] = true
	}
	return nil
}

func (r contactRepo) ListByTags(ctx context.Context, accountID int64, tagIDs []int64) ([]*models.Contact, error) {
	return r.filter(accountID, func(c *models.Contact) bool {
		for _, id := range tagIDs {
			if r.s.tags[c.ID][id] {
				return true
			}
		}
		return false
	}), nil
}

func (r contactRepo) ListByLists(ctx context.Context, accountID int64, listIDs []int64) ([]*models.Contact, error) {
	return r.filter(accountID, func(c *models.Contact) bool {
		for _, id := range listIDs {
			if r.s.lists[id][c.ID] {
				return true
			}
		}
		return false
	}), nil
}

func (r contactRepo) FindByPhones(ctx context.Context, accountID int64, phones []string) ([]*models.Contact, error) {
	want := make(map[string]bool, len(phones))
	for _, p := range phones {
		want[p] = true
	}
	return r.filter(accountID, func(c *models.Contact) bool { return want[c.PhoneE164] }), nil
}

func (r contactRepo) filter(accountID int64, keep func(*models.Contact) bool) []*models.Contact {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*models.Contact{}
	for _, c := range r.s.contacts {
		if c.AccountID == accountID && keep(c) {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// overrides

type overrideRepo struct{ s *Store }

func scopeKey(accountID *int64) int64 {
	if accountID == nil {
		return 0
	}
	return *accountID
}

func (r overrideRepo) Get(ctx context.Context, accountID *int64) (*models.GatewayOverride, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.overrides[scopeKey(accountID)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (r overrideRepo) Set(ctx context.Context, o *models.GatewayOverride) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o.ID = r.s.nextID()
	o.CreatedAt = r.s.stamp()
	cp := *o
	r.s.overrides[scopeKey(o.AccountID)] = &cp
	return nil
}

func (r overrideRepo) Clear(ctx context.Context, accountID *int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := scopeKey(accountID)
	if _, ok := r.s.overrides[key]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.overrides, key)
	return nil
}

// pricing

type pricingRepo struct{ s *Store }

func (r pricingRepo) Multipliers(ctx context.Context) (map[string]float64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make(map[string]float64, len(r.s.pricing))
	for k, v := range r.s.pricing {
		out[k] = v
	}
	return out, nil
}

func (r pricingRepo) Upsert(ctx context.Context, p *models.CountryPricing) error {
	if p.Multiplier < 1 {
		return fmt.Errorf("multiplier must be at least 1, got %v", p.Multiplier)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.pricing[p.Country] = p.Multiplier
	return nil
}

// delivery reports

type reportRepo struct{ s *Store }

func (r reportRepo) Create(ctx context.Context, report *models.DeliveryReport) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	report.ReceivedAt = r.s.stamp()
	cp := *report
	r.s.reports = append(r.s.reports, &cp)
	return nil
}
