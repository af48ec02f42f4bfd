package models

// CountryPricing is the credits multiplier for a destination country
type CountryPricing struct {
	Country    string  `json:"country" db:"country"`
	Multiplier float64 `json:"multiplier" db:"multiplier"`
}
