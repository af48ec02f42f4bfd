package models

import (
	"strings"
	"time"
)

// OverrideNone disables any forced routing
const OverrideNone = "none"

// GatewayOverride forces routing through one gateway. A nil AccountID
// scopes the override to every account.
type GatewayOverride struct {
	ID        int64      `json:"id" db:"id"`
	AccountID *int64     `json:"account_id,omitempty" db:"account_id"`
	Mode      string     `json:"mode" db:"mode"`
	ExpiresAt *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	Reason    string     `json:"reason" db:"reason"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

// ForcedGateway returns the gateway name for force_<gateway> modes
func (o *GatewayOverride) ForcedGateway() (string, bool) {
	if o == nil || !strings.HasPrefix(o.Mode, "force_") {
		return "", false
	}
	name := strings.TrimPrefix(o.Mode, "force_")
	return name, name != ""
}

// ActiveAt reports whether the override applies at now
func (o *GatewayOverride) ActiveAt(now time.Time) bool {
	if o == nil || o.Mode == "" || o.Mode == OverrideNone {
		return false
	}
	if o.ExpiresAt != nil && !now.Before(*o.ExpiresAt) {
		return false
	}
	_, ok := o.ForcedGateway()
	return ok
}
