package mission

import (
	"time"

	"github.com/google/uuid"
)

type Frequency string

const (
	FrequencyOnce           Frequency = "ONCE"
	FrequencyDaily          Frequency = "DAILY"
	FrequencyWeekly         Frequency = "WEEKLY"
	FrequencyMonthly        Frequency = "MONTHLY"
	FrequencyQuarterly      Frequency = "QUARTERLY"
	FrequencyYearly         Frequency = "YEARLY"
	FrequencyElectionPeriod Frequency = "ELECTION_PERIOD"
)

// Mission is a civic task definition. Missions are managed by admins and are
// read-only to the submission lifecycle.
type Mission struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	Title        string     `db:"title" json:"title"`
	Description  string     `db:"description" json:"description"`
	Points       int64      `db:"points" json:"points"`
	Frequency    Frequency  `db:"frequency" json:"frequency"`
	CooldownDays int        `db:"cooldown_days" json:"cooldown_days"`
	Active       bool       `db:"active" json:"active"`
	ExpiresAt    *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// Available reports whether the mission accepts submissions at now.
func (m *Mission) Available(now time.Time) bool {
	return m.Active && (m.ExpiresAt == nil || now.Before(*m.ExpiresAt))
}

type SubmissionStatus string

const (
	StatusPending  SubmissionStatus = "PENDING"
	StatusApproved SubmissionStatus = "APPROVED"
	StatusRejected SubmissionStatus = "REJECTED"
)

type Submission struct {
	ID            uuid.UUID        `db:"id" json:"id"`
	UserID        uuid.UUID        `db:"user_id" json:"user_id"`
	MissionID     uuid.UUID        `db:"mission_id" json:"mission_id"`
	EvidenceURL   string           `db:"evidence_url" json:"evidence_url"`
	Description   string           `db:"description" json:"description"`
	Observation   *string          `db:"observation" json:"observation,omitempty"`
	Status        SubmissionStatus `db:"status" json:"status"`
	ValidatedByID *uuid.UUID       `db:"validated_by_id" json:"validated_by_id,omitempty"`
	ValidatedAt   *time.Time       `db:"validated_at" json:"validated_at,omitempty"`
	CreatedAt     time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time        `db:"updated_at" json:"updated_at"`
}

// Completion is the durable record of an approved submission. The latest one
// per (user, mission) drives cooldown.
type Completion struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	UserID       uuid.UUID  `db:"user_id" json:"user_id"`
	MissionID    uuid.UUID  `db:"mission_id" json:"mission_id"`
	SubmissionID *uuid.UUID `db:"submission_id" json:"submission_id,omitempty"`
	CompletedAt  time.Time  `db:"completed_at" json:"completed_at"`
}

// View is a mission as listed to one user, with advisory cooldown hints.
type View struct {
	Mission
	LastCompletedAt *time.Time `json:"last_completed_at"`
	CooldownUntil   *time.Time `json:"cooldown_until"`
	Eligible        bool       `json:"eligible"`
	HasPending      bool       `json:"has_pending"`
}

type ApprovalResult struct {
	Submission *Submission `json:"submission"`
	Completion *Completion `json:"completion"`
	Points     int64       `json:"points"`
	Balance    int64       `json:"balance"`
}

type SubmissionPage struct {
	Items []Submission
	Total int
	Page  int
	Limit int
}

// EvidenceUpload is a one-shot direct upload target for submission evidence.
type EvidenceUpload struct {
	UploadURL   string    `json:"upload_url"`
	EvidenceURL string    `json:"evidence_url"`
	ContentType string    `json:"content_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}
