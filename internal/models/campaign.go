package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// CampaignStatus represents valid campaign statuses
type CampaignStatus string

const (
	CampaignStatusDraft     CampaignStatus = "draft"
	CampaignStatusQueued    CampaignStatus = "queued"
	CampaignStatusScheduled CampaignStatus = "scheduled"
	CampaignStatusSending   CampaignStatus = "sending"
	CampaignStatusPaused    CampaignStatus = "paused"
	CampaignStatusCanceled  CampaignStatus = "canceled"
	CampaignStatusCompleted CampaignStatus = "completed"
	CampaignStatusFailed    CampaignStatus = "failed"
)

var campaignTransitions = map[CampaignStatus][]CampaignStatus{
	CampaignStatusDraft:     {CampaignStatusQueued, CampaignStatusScheduled, CampaignStatusFailed},
	CampaignStatusScheduled: {CampaignStatusQueued, CampaignStatusCanceled, CampaignStatusFailed},
	CampaignStatusQueued:    {CampaignStatusSending, CampaignStatusPaused, CampaignStatusCanceled, CampaignStatusFailed},
	CampaignStatusSending:   {CampaignStatusPaused, CampaignStatusCanceled, CampaignStatusCompleted, CampaignStatusFailed},
	CampaignStatusPaused:    {CampaignStatusSending, CampaignStatusQueued, CampaignStatusCanceled, CampaignStatusFailed},
	CampaignStatusCompleted: {CampaignStatusQueued},
}

// CanTransition reports whether the state machine allows s -> to
func (s CampaignStatus) CanTransition(to CampaignStatus) bool {
	for _, next := range campaignTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further automatic transitions happen
func (s CampaignStatus) IsTerminal() bool {
	return s == CampaignStatusCanceled || s == CampaignStatusFailed
}

// SourcesFor lists every status that may transition to `to`
func SourcesFor(to CampaignStatus) []CampaignStatus {
	var out []CampaignStatus
	for _, from := range []CampaignStatus{
		CampaignStatusDraft, CampaignStatusScheduled, CampaignStatusQueued,
		CampaignStatusSending, CampaignStatusPaused, CampaignStatusCompleted,
	} {
		if from.CanTransition(to) {
			out = append(out, from)
		}
	}
	return out
}

// AudienceKind selects how recipients are resolved
type AudienceKind string

const (
	AudienceTags   AudienceKind = "tags"
	AudienceList   AudienceKind = "list"
	AudienceManual AudienceKind = "manual"
)

// AudienceSpec is stored as JSONB on the campaign row
type AudienceSpec struct {
	Kind    AudienceKind `json:"kind"`
	TagIDs  []int64      `json:"tag_ids,omitempty"`
	ListIDs []int64      `json:"list_ids,omitempty"`
	Phones  []string     `json:"phones,omitempty"`
}

// Validate enforces exactly one populated audience kind
func (a AudienceSpec) Validate() error {
	switch a.Kind {
	case AudienceTags:
		if len(a.TagIDs) == 0 || len(a.ListIDs) > 0 || len(a.Phones) > 0 {
			return fmt.Errorf("tags audience requires tag_ids only")
		}
	case AudienceList:
		if len(a.ListIDs) == 0 || len(a.TagIDs) > 0 || len(a.Phones) > 0 {
			return fmt.Errorf("list audience requires list_ids only")
		}
	case AudienceManual:
		if len(a.Phones) == 0 || len(a.TagIDs) > 0 || len(a.ListIDs) > 0 {
			return fmt.Errorf("manual audience requires phones only")
		}
	default:
		return fmt.Errorf("invalid audience kind: %q", a.Kind)
	}
	return nil
}

// Value implements driver.Valuer
func (a AudienceSpec) Value() (driver.Value, error) {
	return json.Marshal(a)
}

// Scan implements sql.Scanner
func (a *AudienceSpec) Scan(src any) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, a)
	case string:
		return json.Unmarshal([]byte(v), a)
	case nil:
		*a = AudienceSpec{}
		return nil
	default:
		return fmt.Errorf("unsupported audience type %T", src)
	}
}

// Campaign represents a campaign in the system
type Campaign struct {
	ID             int64          `json:"id" db:"id"`
	AccountID      int64          `json:"account_id" db:"account_id"`
	Name           string         `json:"name" db:"name"`
	Template       string         `json:"template" db:"template"`
	Audience       AudienceSpec   `json:"audience" db:"audience"`
	SenderID       string         `json:"sender_id,omitempty" db:"sender_id"`
	Status         CampaignStatus `json:"status" db:"status"`
	ScheduleAt     *time.Time     `json:"schedule_at,omitempty" db:"schedule_at"`
	Timezone       string         `json:"timezone,omitempty" db:"timezone"`
	TotalTargets   int            `json:"total_targets" db:"total_targets"`
	EstCredits     int64          `json:"est_credits" db:"est_credits"`
	SpentCredits   int64          `json:"spent_credits" db:"spent_credits"`
	MaterializedAt *time.Time     `json:"materialized_at,omitempty" db:"materialized_at"`
	LastError      *string        `json:"last_error,omitempty" db:"last_error"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at" db:"updated_at"`
}

// CampaignStats counts targets per status
type CampaignStats struct {
	Total    int `json:"total"`
	Queued   int `json:"queued"`
	Sending  int `json:"sending"`
	Sent     int `json:"sent"`
	Failed   int `json:"failed"`
	Canceled int `json:"canceled"`
}

// Pending is the number of targets not yet terminal
func (s CampaignStats) Pending() int {
	return s.Queued + s.Sending
}

// CampaignWithStats represents a campaign with its statistics
type CampaignWithStats struct {
	Campaign
	Stats CampaignStats `json:"stats"`
}

// Validate checks if the campaign fields are valid
func (c *Campaign) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("campaign name is required")
	}
	if c.Template == "" {
		return fmt.Errorf("message template is required")
	}
	if err := c.Audience.Validate(); err != nil {
		return err
	}
	if c.Timezone != "" {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			return fmt.Errorf("invalid timezone: %s", c.Timezone)
		}
	}
	return nil
}

// IsScheduled checks if campaign is scheduled for the future
func (c *Campaign) IsScheduled(now time.Time) bool {
	return c.ScheduleAt != nil && c.ScheduleAt.After(now)
}

// CanDelete reports whether the campaign may be removed
func (c *Campaign) CanDelete() bool {
	return c.Status == CampaignStatusDraft || c.Status == CampaignStatusCanceled
}
