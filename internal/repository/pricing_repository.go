package repository

import (
	"context"
	"database/sql"
	"fmt"

	"smsdispatch/internal/models"
)

type pricingRepository struct {
	db *sql.DB
}

// NewPricingRepository creates a new country pricing repository
func NewPricingRepository(db *sql.DB) PricingRepository {
	return &pricingRepository{db: db}
}

// Multipliers returns every configured country multiplier
func (r *pricingRepository) Multipliers(ctx context.Context) (map[string]float64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT country, multiplier FROM country_pricing`)
	if err != nil {
		return nil, fmt.Errorf("failed to query pricing: %w", err)
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var country string
		var multiplier float64
		if err := rows.Scan(&country, &multiplier); err != nil {
			return nil, fmt.Errorf("failed to scan pricing: %w", err)
		}
		out[country] = multiplier
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pricing: %w", err)
	}
	return out, nil
}

// Upsert sets the multiplier for a country
func (r *pricingRepository) Upsert(ctx context.Context, p *models.CountryPricing) error {
	if p.Multiplier < 1 {
		return fmt.Errorf("multiplier must be at least 1, got %v", p.Multiplier)
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO country_pricing (country, multiplier) VALUES ($1, $2)
		ON CONFLICT (country) DO UPDATE SET multiplier = EXCLUDED.multiplier
	`, p.Country, p.Multiplier)
	if err != nil {
		return fmt.Errorf("failed to upsert pricing: %w", err)
	}
	return nil
}
