package study

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	types "github.com/yungbote/roadmap-tracker/internal/domain/progress"
	"github.com/yungbote/roadmap-tracker/internal/pkg/dbctx"
	"github.com/yungbote/roadmap-tracker/internal/platform/apierr"
	"github.com/yungbote/roadmap-tracker/internal/platform/logger"
)

var (
	ErrSessionNotFound = apierr.New(http.StatusNotFound, "session_not_found", errors.New("study session not found"))
	ErrSessionEnded    = apierr.New(http.StatusConflict, "session_ended", errors.New("study session already ended"))
	ErrInvalidPeriod   = apierr.New(http.StatusBadRequest, "invalid_period", errors.New("invalid study period"))
)

type Period string

const (
	PeriodToday Period = "today"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodAll   Period = "all"
)

func ParsePeriod(s string) (Period, error) {
	switch p := Period(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PeriodAll, nil
	case PeriodToday, PeriodWeek, PeriodMonth, PeriodAll:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
	}
}

// SessionStore persists study sessions. GetByID returns nil, nil when the
// session does not exist for that user. Update only ends open sessions and
// returns ErrSessionClosed otherwise.
type SessionStore interface {
	Create(dbc dbctx.Context, s *types.StudySession) error
	Update(dbc dbctx.Context, s *types.StudySession) error
	GetByID(dbc dbctx.Context, userID string, id string) (*types.StudySession, error)
	ListByUser(dbc dbctx.Context, userID string) ([]*types.StudySession, error)
}

type Streak struct {
	CurrentStreak int    `json:"currentStreak"`
	LongestStreak int    `json:"longestStreak"`
	LastStudyDate string `json:"lastStudyDate"`
}

type DayProgress struct {
	Date      string `json:"date"`
	TimeSpent int    `json:"timeSpent"`
	Progress  int    `json:"progress"`
}

type Analytics struct {
	TotalSessions      int            `json:"totalSessions"`
	TimeSpentToday     int            `json:"timeSpentToday"`
	TimeSpentTotal     int            `json:"timeSpentTotal"`
	AverageSessionTime int            `json:"averageSessionTime"`
	StudyStreak        int            `json:"studyStreak"`
	LongestStreak      int            `json:"longestStreak"`
	WeeklyProgress     []DayProgress  `json:"weeklyProgress"`
	TimeSpentByTopic   map[string]int `json:"timeSpentByTopic"`
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

type Service struct {
	store SessionStore
	now   func() time.Time
	loc   *time.Location
	log   *logger.Logger
}

func NewService(store SessionStore, baseLog *logger.Logger, opts ...Option) *Service {
	if baseLog == nil {
		baseLog = logger.Nop()
	}
	s := &Service{
		store: store,
		now:   time.Now,
		loc:   time.Local,
		log:   baseLog.With("service", "StudyService"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) clock() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

func (s *Service) day(t time.Time) string {
	return t.In(s.loc).Format(time.DateOnly)
}

func (s *Service) StartSession(dbc dbctx.Context, userID, topicID string) (*types.StudySession, error) {
	now := s.clock()
	sess := &types.StudySession{
		ID:        uuid.New().String(),
		UserID:    userID,
		TopicID:   topicID,
		StartTime: now,
		Date:      s.day(now),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Create(dbc, sess); err != nil {
		s.log.Error("create study session failed", "user_id", userID, "topic_id", topicID, "error", err)
		return nil, fmt.Errorf("start study session: %w", err)
	}
	return sess, nil
}

// EndSession stamps the end time, the rounded duration in minutes and the
// progress the learner reported.
func (s *Service) EndSession(dbc dbctx.Context, userID, sessionID string, progress int) (*types.StudySession, error) {
	sess, err := s.store.GetByID(dbc, userID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load study session: %w", err)
	}
	if sess == nil {
		return nil, ErrSessionNotFound
	}
	if sess.Ended() {
		return nil, ErrSessionEnded
	}
	now := s.clock()
	sess.EndTime = &now
	sess.DurationMinutes = int(math.Round(now.Sub(sess.StartTime).Minutes()))
	if sess.DurationMinutes < 0 {
		sess.DurationMinutes = 0
	}
	sess.Progress = progress
	sess.UpdatedAt = now
	if err := s.store.Update(dbc, sess); err != nil {
		if errors.Is(err, types.ErrSessionClosed) {
			return nil, ErrSessionEnded
		}
		s.log.Error("end study session failed", "user_id", userID, "session", sessionID, "error", err)
		return nil, fmt.Errorf("end study session: %w", err)
	}
	return sess, nil
}

// StudyTime sums session minutes. week and month are rolling 7 and 30 day
// windows; today is the current calendar day.
func (s *Service) StudyTime(dbc dbctx.Context, userID string, period Period) (int, error) {
	sessions, err := s.store.ListByUser(dbc, userID)
	if err != nil {
		return 0, fmt.Errorf("list study sessions: %w", err)
	}
	return s.studyTime(sessions, period, s.clock())
}

func (s *Service) studyTime(sessions []*types.StudySession, period Period, now time.Time) (int, error) {
	var keep func(*types.StudySession) bool
	switch period {
	case PeriodToday:
		today := s.day(now)
		keep = func(x *types.StudySession) bool { return s.day(x.StartTime) == today }
	case PeriodWeek:
		from := now.Add(-7 * 24 * time.Hour)
		keep = func(x *types.StudySession) bool { return !x.StartTime.Before(from) }
	case PeriodMonth:
		from := now.Add(-30 * 24 * time.Hour)
		keep = func(x *types.StudySession) bool { return !x.StartTime.Before(from) }
	case PeriodAll, "":
		keep = func(*types.StudySession) bool { return true }
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidPeriod, period)
	}
	total := 0
	for _, x := range sessions {
		if keep(x) {
			total += x.DurationMinutes
		}
	}
	return total, nil
}

func (s *Service) Streak(dbc dbctx.Context, userID string) (Streak, error) {
	sessions, err := s.store.ListByUser(dbc, userID)
	if err != nil {
		return Streak{}, fmt.Errorf("list study sessions: %w", err)
	}
	return ComputeStreak(sessions, s.clock(), s.loc), nil
}

// ComputeStreak counts consecutive study days. A run that ended yesterday is
// still current until today is over.
func ComputeStreak(sessions []*types.StudySession, now time.Time, loc *time.Location) Streak {
	if loc == nil {
		loc = time.Local
	}
	days := map[string]struct{}{}
	for _, x := range sessions {
		if x == nil || x.Date == "" {
			continue
		}
		days[x.Date] = struct{}{}
	}
	if len(days) == 0 {
		return Streak{}
	}
	sorted := make([]string, 0, len(days))
	for d := range days {
		sorted = append(sorted, d)
	}
	sort.Strings(sorted)

	out := Streak{LastStudyDate: sorted[len(sorted)-1]}
	run := 0
	var prev time.Time
	for _, d := range sorted {
		t, err := time.ParseInLocation(time.DateOnly, d, loc)
		if err != nil {
			continue
		}
		if !prev.IsZero() && t.Equal(prev.AddDate(0, 0, 1)) {
			run++
		} else {
			run = 1
		}
		if run > out.LongestStreak {
			out.LongestStreak = run
		}
		prev = t
	}

	today := now.In(loc)
	cursor := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, loc)
	if _, ok := days[cursor.Format(time.DateOnly)]; !ok {
		cursor = cursor.AddDate(0, 0, -1)
	}
	for {
		if _, ok := days[cursor.Format(time.DateOnly)]; !ok {
			break
		}
		out.CurrentStreak++
		cursor = cursor.AddDate(0, 0, -1)
	}
	return out
}

func (s *Service) Analytics(dbc dbctx.Context, userID string) (Analytics, error) {
	sessions, err := s.store.ListByUser(dbc, userID)
	if err != nil {
		return Analytics{}, fmt.Errorf("list study sessions: %w", err)
	}
	now := s.clock()
	out := Analytics{
		TotalSessions:    len(sessions),
		TimeSpentByTopic: map[string]int{},
		WeeklyProgress:   make([]DayProgress, 0, 7),
	}
	out.TimeSpentToday, _ = s.studyTime(sessions, PeriodToday, now)

	ended := 0
	byDay := map[string]*DayProgress{}
	for _, x := range sessions {
		out.TimeSpentTotal += x.DurationMinutes
		out.TimeSpentByTopic[x.TopicID] += x.DurationMinutes
		if x.Ended() {
			ended++
		}
		d := byDay[x.Date]
		if d == nil {
			d = &DayProgress{Date: x.Date}
			byDay[x.Date] = d
		}
		d.TimeSpent += x.DurationMinutes
		d.Progress += x.Progress
	}
	if ended > 0 {
		out.AverageSessionTime = int(math.Round(float64(out.TimeSpentTotal) / float64(ended)))
	}

	today := now.In(s.loc)
	for i := 6; i >= 0; i-- {
		date := today.AddDate(0, 0, -i).Format(time.DateOnly)
		if d := byDay[date]; d != nil {
			out.WeeklyProgress = append(out.WeeklyProgress, *d)
		} else {
			out.WeeklyProgress = append(out.WeeklyProgress, DayProgress{Date: date})
		}
	}

	streak := ComputeStreak(sessions, now, s.loc)
	out.StudyStreak = streak.CurrentStreak
	out.LongestStreak = streak.LongestStreak
	return out, nil
}
