package models

import "time"

// TargetStatus represents valid target statuses
type TargetStatus string

const (
	TargetStatusQueued   TargetStatus = "queued"
	TargetStatusSending  TargetStatus = "sending"
	TargetStatusSent     TargetStatus = "sent"
	TargetStatusFailed   TargetStatus = "failed"
	TargetStatusCanceled TargetStatus = "canceled"
)

// IsTerminal reports whether the target will not be attempted again
func (s TargetStatus) IsTerminal() bool {
	return s == TargetStatusSent || s == TargetStatusFailed || s == TargetStatusCanceled
}

// Error codes recorded on targets
const (
	ErrCodeValidation          = "VALIDATION"
	ErrCodeInsufficientCredits = "INSUFFICIENT_CREDITS"
	ErrCodeNetwork             = "NETWORK"
	ErrCodeGateway             = "GATEWAY_ERROR"
	ErrCodeSystem              = "SYSTEM_ERROR"
)

// Encoding is the SMS character set
type Encoding string

const (
	EncodingGSM7 Encoding = "GSM7"
	EncodingUCS2 Encoding = "UCS2"
)

// Target is one planned delivery for a campaign or quick-send job
type Target struct {
	ID               int64        `json:"id" db:"id"`
	CampaignID       *int64       `json:"campaign_id,omitempty" db:"campaign_id"`
	JobID            *int64       `json:"job_id,omitempty" db:"job_id"`
	AccountID        int64        `json:"account_id" db:"account_id"`
	ContactID        *int64       `json:"contact_id,omitempty" db:"contact_id"`
	PhoneE164        string       `json:"phone_e164" db:"phone_e164"`
	Country          string       `json:"country" db:"country"`
	Body             string       `json:"body" db:"body"`
	Segments         int          `json:"segments" db:"segments"`
	Encoding         Encoding     `json:"encoding" db:"encoding"`
	Cost             int64        `json:"cost" db:"cost"`
	Status           TargetStatus `json:"status" db:"status"`
	Tries            int          `json:"tries" db:"tries"`
	LastAttemptAt    *time.Time   `json:"last_attempt_at,omitempty" db:"last_attempt_at"`
	ClaimedAt        *time.Time   `json:"claimed_at,omitempty" db:"claimed_at"`
	GatewayName      *string      `json:"gateway,omitempty" db:"gateway_name"`
	GatewayMessageID *string      `json:"gateway_message_id,omitempty" db:"gateway_message_id"`
	ErrorCode        *string      `json:"error_code,omitempty" db:"error_code"`
	ErrorDetail      *string      `json:"error_detail,omitempty" db:"error_detail"`
	BillingEpoch     int          `json:"billing_epoch" db:"billing_epoch"`
	DeliveryStatus   *string      `json:"delivery_status,omitempty" db:"delivery_status"`
	CreatedAt        time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at" db:"updated_at"`
}

// Owner returns the owning campaign or job reference
func (t *Target) Owner() (kind string, id int64) {
	if t.CampaignID != nil {
		return "campaign", *t.CampaignID
	}
	if t.JobID != nil {
		return "job", *t.JobID
	}
	return "", 0
}

// CanRetry checks if the target may be attempted again
func (t *Target) CanRetry(maxTries int) bool {
	return t.Tries < maxTries
}

// AttemptOutcome is written back to a target after a send attempt
type AttemptOutcome struct {
	Status           TargetStatus
	Tries            int
	AttemptedAt      time.Time
	GatewayName      string
	GatewayMessageID string
	ErrorCode        string
	ErrorDetail      string
}
