package progress

import (
	"testing"
	"time"

	"gorm.io/datatypes"

	"github.com/yungbote/roadmap-tracker/internal/data/repos/testutil"
	types "github.com/yungbote/roadmap-tracker/internal/domain/progress"
)

func TestProgressRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	dbc := testutil.DBC(t, tx)

	repo := NewProgressRepo(db, testutil.Logger(t))

	created := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	note := "tajwid"
	rows := []*types.ResourceProgress{
		{
			UserID: "repo-u1", TopicID: "quran", ResourceID: "quran-basics-video",
			ResourceTitle: "Video", ResourceType: types.ResourceVideo, Level: types.LevelBasic,
			Status: types.StatusInProgress, Notes: &note, CreatedAt: created, UpdatedAt: created,
		},
		{
			UserID: "repo-u1", TopicID: "fiqh", ResourceID: "fiqh-taharah-book",
			ResourceTitle: "Book", ResourceType: types.ResourceBook, Level: types.LevelBasic,
			Status: types.StatusNotStarted, CreatedAt: created, UpdatedAt: created,
		},
		{
			UserID: "repo-u2", TopicID: "quran", ResourceID: "quran-basics-video",
			ResourceTitle: "Video", ResourceType: types.ResourceVideo, Level: types.LevelBasic,
			Status: types.StatusCompleted, CompletedAt: &created, CreatedAt: created, UpdatedAt: created,
		},
	}
	if err := repo.UpsertResourceProgress(dbc, rows); err != nil {
		t.Fatalf("UpsertResourceProgress: %v", err)
	}

	later := created.Add(2 * time.Hour)
	rating := 5
	updated := rows[0].Clone()
	updated.Status = types.StatusCompleted
	updated.Rating = &rating
	updated.CompletedAt = &later
	updated.UpdatedAt = later
	if err := repo.UpsertResourceProgress(dbc, []*types.ResourceProgress{updated}); err != nil {
		t.Fatalf("UpsertResourceProgress (update): %v", err)
	}

	got, _, err := repo.ListByUser(dbc, "repo-u1")
	if err != nil || len(got) != 2 {
		t.Fatalf("ListByUser: err=%v len=%d", err, len(got))
	}
	// ordered by topic then resource
	q := got[1]
	if q.TopicID != "quran" || q.Status != types.StatusCompleted {
		t.Fatalf("expected updated quran row, got %+v", q)
	}
	if q.Rating == nil || *q.Rating != 5 {
		t.Fatalf("rating not persisted: %+v", q.Rating)
	}
	if !q.UpdatedAt.Equal(later) || !q.CreatedAt.Equal(created) {
		t.Fatalf("timestamps not preserved: created=%v updated=%v", q.CreatedAt, q.UpdatedAt)
	}

	target := datatypes.Date(time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC))
	weekly := 3
	goals := []*types.TopicGoal{
		{UserID: "repo-u1", TopicID: "quran", TargetCompletionDate: &target, WeeklyTarget: &weekly, CreatedAt: created, UpdatedAt: created},
		{UserID: "repo-u1", TopicID: "fiqh", CreatedAt: created, UpdatedAt: created},
	}
	if err := repo.UpsertTopicGoals(dbc, goals); err != nil {
		t.Fatalf("UpsertTopicGoals: %v", err)
	}
	weekly = 4
	if err := repo.UpsertTopicGoals(dbc, goals[:1]); err != nil {
		t.Fatalf("UpsertTopicGoals (update): %v", err)
	}

	allRows, allGoals, err := repo.LoadAll(dbc)
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(allRows) != 3 || len(allGoals) != 2 {
		t.Fatalf("LoadAll: rows=%d goals=%d", len(allRows), len(allGoals))
	}
	for _, g := range allGoals {
		if g.TopicID == "quran" && (g.WeeklyTarget == nil || *g.WeeklyTarget != 4) {
			t.Fatalf("goal update not persisted: %+v", g.WeeklyTarget)
		}
	}

	if err := repo.DeleteUserData(dbc, "repo-u1", "quran"); err != nil {
		t.Fatalf("DeleteUserData (topic): %v", err)
	}
	allRows, allGoals, err = repo.LoadAll(dbc)
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(allRows) != 2 || len(allGoals) != 1 {
		t.Fatalf("after topic delete: rows=%d goals=%d", len(allRows), len(allGoals))
	}

	if err := repo.DeleteUserData(dbc, "repo-u1", ""); err != nil {
		t.Fatalf("DeleteUserData (user): %v", err)
	}
	allRows, allGoals, err = repo.LoadAll(dbc)
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(allRows) != 1 || allRows[0].UserID != "repo-u2" || len(allGoals) != 0 {
		t.Fatalf("after user delete: rows=%d goals=%d", len(allRows), len(allGoals))
	}
}
