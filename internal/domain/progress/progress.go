package progress

import (
	"errors"
	"time"

	"gorm.io/datatypes"
)

type ResourceType string

const (
	ResourceVideo   ResourceType = "video"
	ResourceArticle ResourceType = "article"
	ResourceBook    ResourceType = "book"
)

func (t ResourceType) Valid() bool {
	switch t {
	case ResourceVideo, ResourceArticle, ResourceBook:
		return true
	}
	return false
}

type Level string

const (
	LevelBasic        Level = "basic"
	LevelIntermediate Level = "intermediate"
	LevelAdvanced     Level = "advanced"
)

// Levels is the display order used by stats and the catalog.
var Levels = []Level{LevelBasic, LevelIntermediate, LevelAdvanced}

func (l Level) Valid() bool {
	switch l {
	case LevelBasic, LevelIntermediate, LevelAdvanced:
		return true
	}
	return false
}

type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusNotStarted, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

// ResourceProgress is one learner's state on one roadmap resource.
// Timestamps are owned by the ledger, so gorm's auto time tracking is off.
type ResourceProgress struct {
	UserID        string       `gorm:"column:user_id;primaryKey;index:idx_resource_progress_user_topic,priority:1" json:"userId"`
	TopicID       string       `gorm:"column:topic_id;primaryKey;index:idx_resource_progress_user_topic,priority:2" json:"topicId"`
	ResourceID    string       `gorm:"column:resource_id;primaryKey" json:"resourceId"`
	ResourceTitle string       `gorm:"column:resource_title;not null;default:''" json:"resourceTitle"`
	ResourceType  ResourceType `gorm:"column:resource_type;not null" json:"resourceType"`
	Level         Level        `gorm:"column:level;not null" json:"level"`
	Status        Status       `gorm:"column:status;not null;index" json:"status"`
	Notes         *string      `gorm:"column:notes;type:text" json:"notes,omitempty"`
	Rating        *int         `gorm:"column:rating" json:"rating,omitempty"`
	CompletedAt   *time.Time   `gorm:"column:completed_at" json:"completedAt,omitempty"`
	CreatedAt     time.Time    `gorm:"column:created_at;not null;autoCreateTime:false" json:"createdAt"`
	UpdatedAt     time.Time    `gorm:"column:updated_at;not null;autoUpdateTime:false" json:"updatedAt"`
}

func (ResourceProgress) TableName() string { return "resource_progress" }

// Clone returns a deep copy so callers never share pointers with the ledger.
func (p *ResourceProgress) Clone() *ResourceProgress {
	if p == nil {
		return nil
	}
	out := *p
	if p.Notes != nil {
		v := *p.Notes
		out.Notes = &v
	}
	if p.Rating != nil {
		v := *p.Rating
		out.Rating = &v
	}
	if p.CompletedAt != nil {
		v := *p.CompletedAt
		out.CompletedAt = &v
	}
	return &out
}

// TopicGoal is a learner's self-set target for one topic.
type TopicGoal struct {
	UserID               string          `gorm:"column:user_id;primaryKey" json:"userId"`
	TopicID              string          `gorm:"column:topic_id;primaryKey" json:"topicId"`
	TargetCompletionDate *datatypes.Date `gorm:"column:target_completion_date" json:"targetCompletionDate,omitempty"`
	WeeklyTarget         *int            `gorm:"column:weekly_target" json:"weeklyTarget,omitempty"`
	PersonalNotes        *string         `gorm:"column:personal_notes;type:text" json:"personalNotes,omitempty"`
	CreatedAt            time.Time       `gorm:"column:created_at;not null;autoCreateTime:false" json:"createdAt"`
	UpdatedAt            time.Time       `gorm:"column:updated_at;not null;autoUpdateTime:false" json:"updatedAt"`
}

func (TopicGoal) TableName() string { return "topic_goal" }

func (g *TopicGoal) Clone() *TopicGoal {
	if g == nil {
		return nil
	}
	out := *g
	if g.TargetCompletionDate != nil {
		v := *g.TargetCompletionDate
		out.TargetCompletionDate = &v
	}
	if g.WeeklyTarget != nil {
		v := *g.WeeklyTarget
		out.WeeklyTarget = &v
	}
	if g.PersonalNotes != nil {
		v := *g.PersonalNotes
		out.PersonalNotes = &v
	}
	return &out
}

// StudySession is one timed study block. Date is the local calendar day the
// session started on, formatted 2006-01-02.
type StudySession struct {
	ID              string     `gorm:"column:id;primaryKey" json:"id"`
	UserID          string     `gorm:"column:user_id;not null;index:idx_study_session_user_date,priority:1" json:"userId"`
	TopicID         string     `gorm:"column:topic_id;not null;index" json:"topicId"`
	StartTime       time.Time  `gorm:"column:start_time;not null" json:"startTime"`
	EndTime         *time.Time `gorm:"column:end_time" json:"endTime,omitempty"`
	DurationMinutes int        `gorm:"column:duration_minutes;not null;default:0" json:"durationMinutes"`
	Progress        int        `gorm:"column:progress;not null;default:0" json:"progress"`
	Date            string     `gorm:"column:date;not null;index:idx_study_session_user_date,priority:2" json:"date"`
	CreatedAt       time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"createdAt"`
	UpdatedAt       time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updatedAt"`
}

func (StudySession) TableName() string { return "study_session" }

// ErrSessionClosed is returned by stores when an end write finds the session
// already ended.
var ErrSessionClosed = errors.New("study session already closed")

func (s *StudySession) Ended() bool { return s != nil && s.EndTime != nil }
