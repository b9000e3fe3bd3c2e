package models

import "time"

// Session kinds.
const (
	KindInterview    = "interview"
	KindPresentation = "presentation"
)

// Session statuses.
const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
)

// Session is one practice interaction: a one-on-one interview or a board
// presentation. Mutated only by the session engine; terminal once status
// leaves in_progress.
type Session struct {
	ID             string `gorm:"primaryKey;size:64"` // UUID
	UserID         uint   `gorm:"index;not null"`
	Kind           string `gorm:"size:16;index;not null"` // interview / presentation
	Topic          string `gorm:"size:300;not null"`      // job role or presentation topic
	Status         string `gorm:"size:16;index;not null"`
	Catalog        string `gorm:"size:32;not null"` // persona catalog name
	PersonaIndex   int    `gorm:"not null"`         // index of the persona asking the open turn
	OverallScore   *int   // null until finished; null if no turn was scored
	CreditsCharged int    `gorm:"not null"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
	CompletedAt    *time.Time

	User  User   `gorm:"constraint:OnDelete:CASCADE"`
	Turns []Turn `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE"`
}

// Turn is one question/answer/feedback cycle. Seq is 1-based, strictly
// increasing with no gaps. Answer and feedback fields are write-once: a turn
// is immutable after its feedback is recorded.
type Turn struct {
	ID          string `gorm:"primaryKey;size:64"` // UUID
	SessionID   string `gorm:"size:64;not null;uniqueIndex:idx_turn_session_seq"`
	Seq         int    `gorm:"not null;uniqueIndex:idx_turn_session_seq"`
	PersonaID   string `gorm:"size:64;not null"` // referenced by value, not live handle
	PersonaRole string `gorm:"size:64;not null"` // cached display role
	Question    string `gorm:"type:text;not null"`
	Answer      *string `gorm:"type:text"`
	Feedback    *string `gorm:"type:text"`
	Improved    *string `gorm:"type:text"`
	Satisfied   *bool
	Score       *int // 1..10, null until scored; never invented on failure
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (t *Turn) Answered() bool { return t.Answer != nil }
func (t *Turn) Scored() bool   { return t.Score != nil }
