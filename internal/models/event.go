package models

import "time"

// Dispatch event types published after state changes
const (
	EventTargetSent        = "target.sent"
	EventTargetRetry       = "target.retry"
	EventTargetFailed      = "target.failed"
	EventCampaignSending   = "campaign.sending"
	EventCampaignCompleted = "campaign.completed"
	EventCampaignFailed    = "campaign.failed"
	EventJobCompleted      = "job.completed"
)

// DispatchEvent is a notification about dispatch progress
type DispatchEvent struct {
	Type       string    `json:"type"`
	RunID      string    `json:"run_id,omitempty"`
	AccountID  int64     `json:"account_id"`
	CampaignID *int64    `json:"campaign_id,omitempty"`
	JobID      *int64    `json:"job_id,omitempty"`
	TargetID   *int64    `json:"target_id,omitempty"`
	Gateway    string    `json:"gateway,omitempty"`
	ErrorCode  string    `json:"error_code,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// DispatchTrigger asks a worker to run a dispatch pass now
type DispatchTrigger struct {
	Reason     string    `json:"reason"`
	AccountID  int64     `json:"account_id,omitempty"`
	CampaignID int64     `json:"campaign_id,omitempty"`
	JobID      int64     `json:"job_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
