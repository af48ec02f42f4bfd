package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Attributes holds free-form contact fields, persisted as JSONB
type Attributes map[string]any

// Value implements driver.Valuer
func (a Attributes) Value() (driver.Value, error) {
	if a == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(a)
}

// Scan implements sql.Scanner
func (a *Attributes) Scan(src any) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, a)
	case string:
		return json.Unmarshal([]byte(v), a)
	case nil:
		*a = Attributes{}
		return nil
	default:
		return fmt.Errorf("unsupported attributes type %T", src)
	}
}

// Contact represents an addressable recipient owned by an account
type Contact struct {
	ID         int64      `json:"id" db:"id"`
	AccountID  int64      `json:"account_id" db:"account_id"`
	Name       string     `json:"name" db:"name"`
	PhoneE164  string     `json:"phone_e164" db:"phone_e164"`
	Attributes Attributes `json:"attributes" db:"attributes"`
	IsBlocked  bool       `json:"is_blocked" db:"is_blocked"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}

// Recipient is one resolved audience entry. ContactID is nil for
// ad-hoc numbers with no matching contact.
type Recipient struct {
	ContactID  *int64     `json:"contact_id"`
	Name       *string    `json:"name"`
	PhoneE164  string     `json:"phone_e164"`
	Country    string     `json:"country"`
	Attributes Attributes `json:"attributes"`
}

// RecipientFromContact builds a recipient entry for a stored contact
func RecipientFromContact(c *Contact, country string) Recipient {
	id := c.ID
	r := Recipient{
		ContactID:  &id,
		PhoneE164:  c.PhoneE164,
		Country:    country,
		Attributes: c.Attributes,
	}
	if c.Name != "" {
		name := c.Name
		r.Name = &name
	}
	return r
}
