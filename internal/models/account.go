package models

import "time"

// Account owns a credit balance and the sender IDs used for its messages
type Account struct {
	ID                 int64     `json:"id" db:"id"`
	Name               string    `json:"name" db:"name"`
	Credits            int64     `json:"credits" db:"credits"`
	DefaultSenderID    string    `json:"default_sender_id" db:"default_sender_id"`
	SenderIDs          []string  `json:"sender_ids" db:"sender_ids"`
	PrimaryGateway     string    `json:"primary_gateway,omitempty" db:"primary_gateway"`
	DefaultCountry     string    `json:"default_country,omitempty" db:"default_country"`
	RateLimitPerSecond int       `json:"rate_limit_per_second,omitempty" db:"rate_limit_per_second"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"`
}

// HasSender reports whether senderID is registered on the account
func (a *Account) HasSender(senderID string) bool {
	if senderID == a.DefaultSenderID {
		return true
	}
	for _, s := range a.SenderIDs {
		if s == senderID {
			return true
		}
	}
	return false
}

// LedgerKind is the direction of a ledger entry
type LedgerKind string

const (
	LedgerDebit  LedgerKind = "debit"
	LedgerRefund LedgerKind = "refund"
	LedgerGrant  LedgerKind = "grant"
)

// LedgerEntry is one append-only credit movement
type LedgerEntry struct {
	ID             int64          `json:"id" db:"id"`
	AccountID      int64          `json:"account_id" db:"account_id"`
	Kind           LedgerKind     `json:"kind" db:"kind"`
	Amount         int64          `json:"amount" db:"amount"`
	Reason         string         `json:"reason" db:"reason"`
	IdempotencyKey string         `json:"idempotency_key" db:"idempotency_key"`
	TargetID       *int64         `json:"target_id,omitempty" db:"target_id"`
	BillingEpoch   int            `json:"billing_epoch" db:"billing_epoch"`
	Metadata       map[string]any `json:"metadata,omitempty" db:"metadata"`
	BalanceAfter   int64          `json:"balance_after" db:"balance_after"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
}
