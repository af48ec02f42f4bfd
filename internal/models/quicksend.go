package models

import "time"

// JobStatus represents quick-send job statuses
type JobStatus string

const (
	JobStatusSending   JobStatus = "sending"
	JobStatusCompleted JobStatus = "completed"
	JobStatusCanceled  JobStatus = "canceled"
)

// QuickSendJob is an ad-hoc send to numbers supplied directly
type QuickSendJob struct {
	ID           int64     `json:"id" db:"id"`
	AccountID    int64     `json:"account_id" db:"account_id"`
	Body         string    `json:"body" db:"body"`
	SenderID     string    `json:"sender_id,omitempty" db:"sender_id"`
	Status       JobStatus `json:"status" db:"status"`
	TotalTargets int       `json:"total_targets" db:"total_targets"`
	Invalid      int       `json:"invalid" db:"invalid"`
	EstCredits   int64     `json:"est_credits" db:"est_credits"`
	SpentCredits int64     `json:"spent_credits" db:"spent_credits"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// QuickSendWithStats represents a job with its target statistics
type QuickSendWithStats struct {
	QuickSendJob
	Stats CampaignStats `json:"stats"`
}
