package progress

import (
	"math"
	"time"

	types "github.com/yungbote/roadmap-tracker/internal/domain/progress"
)

// LevelCounts is the number of resources a roadmap defines per level.
type LevelCounts struct {
	Basic        int `json:"basic"`
	Intermediate int `json:"intermediate"`
	Advanced     int `json:"advanced"`
}

func (c LevelCounts) Total() int { return c.Basic + c.Intermediate + c.Advanced }

func (c *LevelCounts) Add(level types.Level, n int) {
	switch level {
	case types.LevelBasic:
		c.Basic += n
	case types.LevelIntermediate:
		c.Intermediate += n
	case types.LevelAdvanced:
		c.Advanced += n
	}
}

type TopicStats struct {
	TopicID               string     `json:"topicId"`
	TotalResources        int        `json:"totalResources"`
	CompletedResources    int        `json:"completedResources"`
	InProgressResources   int        `json:"inProgressResources"`
	ProgressPercentage    int        `json:"progressPercentage"`
	BasicCompleted        int        `json:"basicCompleted"`
	BasicTotal            int        `json:"basicTotal"`
	IntermediateCompleted int        `json:"intermediateCompleted"`
	IntermediateTotal     int        `json:"intermediateTotal"`
	AdvancedCompleted     int        `json:"advancedCompleted"`
	AdvancedTotal         int        `json:"advancedTotal"`
	LastActivity          *time.Time `json:"lastActivity,omitempty"`
}

type OverallStats struct {
	TotalTopics             int        `json:"totalTopics"`
	ActiveTopics            int        `json:"activeTopics"`
	TotalResourcesCompleted int        `json:"totalResourcesCompleted"`
	CurrentStreak           int        `json:"currentStreak"`
	LastActivity            *time.Time `json:"lastActivity,omitempty"`
}

// ComputeTopicStats folds one topic's rows against the roadmap's totals.
// Rows from other topics are ignored.
func ComputeTopicStats(rows []*types.ResourceProgress, topicID string, totals LevelCounts) TopicStats {
	out := TopicStats{
		TopicID:           topicID,
		TotalResources:    totals.Total(),
		BasicTotal:        totals.Basic,
		IntermediateTotal: totals.Intermediate,
		AdvancedTotal:     totals.Advanced,
	}
	var completedByLevel LevelCounts
	for _, r := range rows {
		if r == nil || r.TopicID != topicID {
			continue
		}
		switch r.Status {
		case types.StatusCompleted:
			out.CompletedResources++
			completedByLevel.Add(r.Level, 1)
		case types.StatusInProgress:
			out.InProgressResources++
		}
		out.LastActivity = later(out.LastActivity, r.UpdatedAt)
	}
	out.BasicCompleted = completedByLevel.Basic
	out.IntermediateCompleted = completedByLevel.Intermediate
	out.AdvancedCompleted = completedByLevel.Advanced
	out.ProgressPercentage = Percentage(out.CompletedResources, out.TotalResources)
	return out
}

// ComputeOverallStats summarizes every row of one user. The streak is the
// two-day signal the learner dashboard renders: 1 when something was
// completed today, 2 when also yesterday, otherwise 0.
func ComputeOverallStats(rows []*types.ResourceProgress, now time.Time, loc *time.Location) OverallStats {
	if loc == nil {
		loc = time.Local
	}
	var out OverallStats
	touched := map[string]struct{}{}
	active := map[string]struct{}{}
	today := dayOf(now, loc)
	yesterday := dayOf(now.Add(-24*time.Hour), loc)
	var completedToday, completedYesterday bool

	for _, r := range rows {
		if r == nil {
			continue
		}
		touched[r.TopicID] = struct{}{}
		if r.Status != types.StatusNotStarted {
			active[r.TopicID] = struct{}{}
		}
		if r.Status == types.StatusCompleted {
			out.TotalResourcesCompleted++
			if r.CompletedAt != nil {
				switch dayOf(*r.CompletedAt, loc) {
				case today:
					completedToday = true
				case yesterday:
					completedYesterday = true
				}
			}
		}
		out.LastActivity = later(out.LastActivity, r.UpdatedAt)
	}
	out.TotalTopics = len(touched)
	out.ActiveTopics = len(active)
	switch {
	case completedToday && completedYesterday:
		out.CurrentStreak = 2
	case completedToday:
		out.CurrentStreak = 1
	}
	return out
}

// Percentage is round(part/total*100), 0 for an empty total.
func Percentage(part, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(part) / float64(total) * 100))
}

func (l *Ledger) GetTopicStats(userID, topicID string, totals LevelCounts) TopicStats {
	return ComputeTopicStats(l.GetTopicProgress(userID, topicID), topicID, totals)
}

func (l *Ledger) GetUserOverallStats(userID string) OverallStats {
	return ComputeOverallStats(l.UserResources(userID, ""), l.Now(), l.loc)
}

// GetAllTopicsStats computes stats for every topic in totals, keyed by topic id.
func (l *Ledger) GetAllTopicsStats(userID string, totals map[string]LevelCounts) map[string]TopicStats {
	out := make(map[string]TopicStats, len(totals))
	for topicID, t := range totals {
		out[topicID] = l.GetTopicStats(userID, topicID, t)
	}
	return out
}

func dayOf(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(time.DateOnly)
}

func later(cur *time.Time, t time.Time) *time.Time {
	if cur == nil || t.After(*cur) {
		v := t
		return &v
	}
	return cur
}
