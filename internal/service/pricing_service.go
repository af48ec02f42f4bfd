package service

import (
	"context"
	"fmt"
	"math"
	"strings"

	"smsdispatch/internal/models"
	"smsdispatch/internal/repository"
	"smsdispatch/internal/segment"
)

// PriceTable maps country codes to credit multipliers
type PriceTable map[string]float64

// Multiplier returns the country's multiplier, 1 when unpriced
func (p PriceTable) Multiplier(country string) float64 {
	if m, ok := p[strings.ToUpper(country)]; ok && m >= 1 {
		return m
	}
	return 1
}

// Cost is the credit cost of a message of the given segments
func (p PriceTable) Cost(segments int, country string) int64 {
	if segments <= 0 {
		return 0
	}
	return int64(math.Ceil(float64(segments) * p.Multiplier(country)))
}

// PricingService reads country pricing
type PricingService struct {
	repo repository.PricingRepository
}

// NewPricingService creates a new pricing service
func NewPricingService(repo repository.PricingRepository) *PricingService {
	return &PricingService{repo: repo}
}

// Table loads the current price table
func (s *PricingService) Table(ctx context.Context) (PriceTable, error) {
	m, err := s.repo.Multipliers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load pricing: %w", err)
	}
	return PriceTable(m), nil
}

// SetMultiplier stores a country's multiplier. Existing targets keep the
// cost captured when they were created.
func (s *PricingService) SetMultiplier(ctx context.Context, country string, multiplier float64) error {
	country = strings.ToUpper(strings.TrimSpace(country))
	if country == "" {
		return &ValidationError{Message: "country is required"}
	}
	if multiplier < 1 {
		return &ValidationError{Message: "multiplier must be at least 1"}
	}
	return s.repo.Upsert(ctx, &models.CountryPricing{Country: country, Multiplier: multiplier})
}

// Planner renders, measures and prices targets
type Planner struct {
	templates *TemplateService
}

// NewPlanner creates a target planner
func NewPlanner(templates *TemplateService) *Planner {
	return &Planner{templates: templates}
}

// Estimate is the pre-queue credit estimate of a template over an audience
type Estimate struct {
	Encoding   models.Encoding `json:"encoding"`
	Segments   int             `json:"segments"`
	Recipients int             `json:"recipients"`
	Credits    int64           `json:"credits"`
	Preview    string          `json:"preview"`
}

// Estimate renders the template for the first recipient, or an empty
// one, and multiplies its segments by the audience size
func (p *Planner) Estimate(template string, recipients []models.Recipient) Estimate {
	representative := models.Recipient{}
	if len(recipients) > 0 {
		representative = recipients[0]
	}
	body := p.templates.Render(template, representative)
	info := segment.Calculate(body)
	return Estimate{
		Encoding:   info.Encoding,
		Segments:   info.Segments,
		Recipients: len(recipients),
		Credits:    int64(info.Segments) * int64(len(recipients)),
		Preview:    body,
	}
}

// Plan builds one queued target per recipient with its final body and
// cost. Ownership fields are left for the caller.
func (p *Planner) Plan(accountID int64, template string, recipients []models.Recipient, prices PriceTable) []*models.Target {
	targets := make([]*models.Target, 0, len(recipients))
	for _, r := range recipients {
		body := p.templates.Render(template, r)
		info := segment.Calculate(body)
		targets = append(targets, &models.Target{
			AccountID: accountID,
			ContactID: r.ContactID,
			PhoneE164: r.PhoneE164,
			Country:   r.Country,
			Body:      body,
			Segments:  info.Segments,
			Encoding:  info.Encoding,
			Cost:      prices.Cost(info.Segments, r.Country),
			Status:    models.TargetStatusQueued,
		})
	}
	return targets
}

// TotalCost sums the cost of planned targets
func TotalCost(targets []*models.Target) int64 {
	var total int64
	for _, t := range targets {
		total += t.Cost
	}
	return total
}
