package study

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	types "github.com/yungbote/roadmap-tracker/internal/domain/progress"
	"github.com/yungbote/roadmap-tracker/internal/pkg/dbctx"
)

type memStore struct {
	mu   sync.Mutex
	rows map[string]*types.StudySession
}

func newMemStore() *memStore { return &memStore{rows: map[string]*types.StudySession{}} }

func (m *memStore) Create(_ dbctx.Context, s *types.StudySession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.rows[s.ID] = &cp
	return nil
}

func (m *memStore) Update(_ dbctx.Context, s *types.StudySession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.rows[s.ID]; !ok || cur.UserID != s.UserID || cur.Ended() {
		return types.ErrSessionClosed
	}
	cp := *s
	m.rows[s.ID] = &cp
	return nil
}

func (m *memStore) GetByID(_ dbctx.Context, userID, id string) (*types.StudySession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[id]
	if !ok || s.UserID != userID {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (m *memStore) ListByUser(_ dbctx.Context, userID string) ([]*types.StudySession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*types.StudySession{}
	for _, s := range m.rows {
		if s.UserID == userID {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func bg() dbctx.Context { return dbctx.Context{Ctx: context.Background()} }

func newTestService(t *testing.T) (*Service, *fakeClock, *memStore) {
	t.Helper()
	clk := &fakeClock{t: time.Date(2026, 5, 20, 8, 0, 0, 0, time.UTC)}
	store := newMemStore()
	return NewService(store, nil, WithClock(clk.Now), WithLocation(time.UTC)), clk, store
}

func TestStartAndEndSession(t *testing.T) {
	svc, clk, _ := newTestService(t)

	sess, err := svc.StartSession(bg(), "u1", "quran")
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if sess.ID == "" || sess.Date != "2026-05-20" || sess.Ended() {
		t.Fatalf("started session: %+v", sess)
	}

	clk.Advance(25*time.Minute + 40*time.Second)
	ended, err := svc.EndSession(bg(), "u1", sess.ID, 3)
	if err != nil {
		t.Fatalf("EndSession: %v", err)
	}
	if ended.DurationMinutes != 26 || ended.Progress != 3 || !ended.Ended() {
		t.Fatalf("ended session: %+v", ended)
	}

	if _, err := svc.EndSession(bg(), "u1", sess.ID, 1); !errors.Is(err, ErrSessionEnded) {
		t.Fatalf("second end: want ErrSessionEnded, got %v", err)
	}
	if _, err := svc.EndSession(bg(), "u2", sess.ID, 1); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("foreign session: want ErrSessionNotFound, got %v", err)
	}
	if _, err := svc.EndSession(bg(), "u1", "missing", 1); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("missing session: want ErrSessionNotFound, got %v", err)
	}
}

// staleStore serves the session as it looked before any end was written,
// the way a concurrent EndSession saw it.
type staleStore struct {
	*memStore
	snapshot *types.StudySession
}

func (s *staleStore) GetByID(_ dbctx.Context, _ string, _ string) (*types.StudySession, error) {
	cp := *s.snapshot
	return &cp, nil
}

func TestConcurrentEndKeepsFirstResult(t *testing.T) {
	svc, clk, store := newTestService(t)
	sess, err := svc.StartSession(bg(), "u1", "quran")
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	open, _ := store.GetByID(bg(), "u1", sess.ID)

	clk.Advance(20 * time.Minute)
	if _, err := svc.EndSession(bg(), "u1", sess.ID, 4); err != nil {
		t.Fatalf("EndSession: %v", err)
	}

	clk.Advance(10 * time.Minute)
	racer := NewService(&staleStore{memStore: store, snapshot: open}, nil, WithClock(clk.Now), WithLocation(time.UTC))
	if _, err := racer.EndSession(bg(), "u1", sess.ID, 9); !errors.Is(err, ErrSessionEnded) {
		t.Fatalf("racing end: want ErrSessionEnded, got %v", err)
	}
	got, _ := store.GetByID(bg(), "u1", sess.ID)
	if got.DurationMinutes != 20 || got.Progress != 4 {
		t.Fatalf("first end overwritten: %+v", got)
	}
}

func seedSession(t *testing.T, store *memStore, id string, start time.Time, minutes, progress int, topic string) {
	t.Helper()
	end := start.Add(time.Duration(minutes) * time.Minute)
	_ = store.Create(bg(), &types.StudySession{
		ID: id, UserID: "u1", TopicID: topic,
		StartTime: start, EndTime: &end,
		DurationMinutes: minutes, Progress: progress,
		Date: start.Format(time.DateOnly),
	})
}

func TestStudyTimePeriods(t *testing.T) {
	svc, clk, store := newTestService(t)
	now := clk.Now()
	seedSession(t, store, "a", now.Add(-time.Hour), 30, 1, "quran")
	seedSession(t, store, "b", now.Add(-3*24*time.Hour), 20, 1, "fiqh")
	seedSession(t, store, "c", now.Add(-10*24*time.Hour), 15, 1, "quran")
	seedSession(t, store, "d", now.Add(-40*24*time.Hour), 60, 1, "quran")

	cases := []struct {
		period Period
		want   int
	}{
		{PeriodToday, 30},
		{PeriodWeek, 50},
		{PeriodMonth, 65},
		{PeriodAll, 125},
	}
	for _, tc := range cases {
		t.Run(string(tc.period), func(t *testing.T) {
			got, err := svc.StudyTime(bg(), "u1", tc.period)
			if err != nil {
				t.Fatalf("StudyTime: %v", err)
			}
			if got != tc.want {
				t.Fatalf("minutes: got=%d want=%d", got, tc.want)
			}
		})
	}
	if _, err := svc.StudyTime(bg(), "u1", Period("decade")); !errors.Is(err, ErrInvalidPeriod) {
		t.Fatalf("want ErrInvalidPeriod, got %v", err)
	}
}

func TestParsePeriod(t *testing.T) {
	if p, err := ParsePeriod(""); err != nil || p != PeriodAll {
		t.Fatalf("empty: %v %v", p, err)
	}
	if p, err := ParsePeriod(" Week "); err != nil || p != PeriodWeek {
		t.Fatalf("week: %v %v", p, err)
	}
	if _, err := ParsePeriod("year"); !errors.Is(err, ErrInvalidPeriod) {
		t.Fatalf("year: %v", err)
	}
}

func TestComputeStreak(t *testing.T) {
	now := time.Date(2026, 5, 20, 8, 0, 0, 0, time.UTC)
	day := func(offset int) *types.StudySession {
		return &types.StudySession{Date: now.AddDate(0, 0, offset).Format(time.DateOnly)}
	}
	cases := []struct {
		name     string
		sessions []*types.StudySession
		want     Streak
	}{
		{"none", nil, Streak{}},
		{"today", []*types.StudySession{day(0), day(0)}, Streak{CurrentStreak: 1, LongestStreak: 1, LastStudyDate: "2026-05-20"}},
		{"three days through today", []*types.StudySession{day(-2), day(-1), day(0)}, Streak{CurrentStreak: 3, LongestStreak: 3, LastStudyDate: "2026-05-20"}},
		{"run ending yesterday is kept", []*types.StudySession{day(-2), day(-1)}, Streak{CurrentStreak: 2, LongestStreak: 2, LastStudyDate: "2026-05-19"}},
		{"gap resets", []*types.StudySession{day(-9), day(-8), day(-7), day(-6), day(-3)}, Streak{CurrentStreak: 0, LongestStreak: 4, LastStudyDate: "2026-05-17"}},
		{"across month boundary", []*types.StudySession{day(-20), day(-19), day(-18), day(0)}, Streak{CurrentStreak: 1, LongestStreak: 3, LastStudyDate: "2026-05-20"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ComputeStreak(tc.sessions, now, time.UTC); got != tc.want {
				t.Fatalf("streak: got=%+v want=%+v", got, tc.want)
			}
		})
	}
}

func TestAnalytics(t *testing.T) {
	svc, clk, store := newTestService(t)
	now := clk.Now()
	seedSession(t, store, "a", now.Add(-time.Hour), 30, 2, "quran")
	seedSession(t, store, "b", now.Add(-2*time.Hour), 10, 1, "fiqh")
	seedSession(t, store, "c", now.Add(-24*time.Hour), 20, 4, "quran")
	if _, err := svc.StartSession(bg(), "u1", "hadith"); err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	got, err := svc.Analytics(bg(), "u1")
	if err != nil {
		t.Fatalf("Analytics: %v", err)
	}
	if got.TotalSessions != 4 || got.TimeSpentToday != 40 || got.TimeSpentTotal != 60 {
		t.Fatalf("totals: %+v", got)
	}
	if got.AverageSessionTime != 20 {
		t.Fatalf("average over ended sessions: got=%d want=20", got.AverageSessionTime)
	}
	if got.StudyStreak != 2 || got.LongestStreak != 2 {
		t.Fatalf("streak: %d/%d", got.StudyStreak, got.LongestStreak)
	}
	if len(got.WeeklyProgress) != 7 {
		t.Fatalf("weekly len: %d", len(got.WeeklyProgress))
	}
	last := got.WeeklyProgress[6]
	if last.Date != "2026-05-20" || last.TimeSpent != 40 || last.Progress != 3 {
		t.Fatalf("today bucket: %+v", last)
	}
	if y := got.WeeklyProgress[5]; y.Date != "2026-05-19" || y.TimeSpent != 20 {
		t.Fatalf("yesterday bucket: %+v", y)
	}
	if got.WeeklyProgress[0].Date != "2026-05-14" || got.WeeklyProgress[0].TimeSpent != 0 {
		t.Fatalf("oldest bucket: %+v", got.WeeklyProgress[0])
	}
	if got.TimeSpentByTopic["quran"] != 50 || got.TimeSpentByTopic["fiqh"] != 10 {
		t.Fatalf("by topic: %v", got.TimeSpentByTopic)
	}
}
