package progress

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/roadmap-tracker/internal/domain/progress"
	"github.com/yungbote/roadmap-tracker/internal/pkg/dbctx"
	"github.com/yungbote/roadmap-tracker/internal/platform/logger"
)

// ProgressRepo stores the relational copy of the progress ledger.
type ProgressRepo interface {
	UpsertResourceProgress(dbc dbctx.Context, rows []*types.ResourceProgress) error
	UpsertTopicGoals(dbc dbctx.Context, rows []*types.TopicGoal) error
	DeleteUserData(dbc dbctx.Context, userID string, topicID string) error
	LoadAll(dbc dbctx.Context) ([]*types.ResourceProgress, []*types.TopicGoal, error)
	ListByUser(dbc dbctx.Context, userID string) ([]*types.ResourceProgress, []*types.TopicGoal, error)
}

type progressRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProgressRepo(db *gorm.DB, baseLog *logger.Logger) ProgressRepo {
	return &progressRepo{db: db, log: baseLog.With("repo", "ProgressRepo")}
}

func (r *progressRepo) dbx(dbc dbctx.Context) *gorm.DB {
	return dbc.DB(r.db)
}

const upsertBatch = 200

func (r *progressRepo) UpsertResourceProgress(dbc dbctx.Context, rows []*types.ResourceProgress) error {
	if len(rows) == 0 {
		return nil
	}
	return r.dbx(dbc).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "topic_id"}, {Name: "resource_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"resource_title",
				"resource_type",
				"level",
				"status",
				"notes",
				"rating",
				"completed_at",
				"created_at",
				"updated_at",
			}),
		}).
		CreateInBatches(rows, upsertBatch).Error
}

func (r *progressRepo) UpsertTopicGoals(dbc dbctx.Context, rows []*types.TopicGoal) error {
	if len(rows) == 0 {
		return nil
	}
	return r.dbx(dbc).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "topic_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"target_completion_date",
				"weekly_target",
				"personal_notes",
				"created_at",
				"updated_at",
			}),
		}).
		CreateInBatches(rows, upsertBatch).Error
}

// DeleteUserData removes rows and goals for the user, or one topic of theirs
// when topicID is set, in one transaction.
func (r *progressRepo) DeleteUserData(dbc dbctx.Context, userID string, topicID string) error {
	if userID == "" {
		return nil
	}
	return r.dbx(dbc).Transaction(func(tx *gorm.DB) error {
		q := tx.Where("user_id = ?", userID)
		if topicID != "" {
			q = q.Where("topic_id = ?", topicID)
		}
		if err := q.Delete(&types.ResourceProgress{}).Error; err != nil {
			return err
		}
		q = tx.Where("user_id = ?", userID)
		if topicID != "" {
			q = q.Where("topic_id = ?", topicID)
		}
		return q.Delete(&types.TopicGoal{}).Error
	})
}

func (r *progressRepo) LoadAll(dbc dbctx.Context) ([]*types.ResourceProgress, []*types.TopicGoal, error) {
	t := r.dbx(dbc)
	rows := []*types.ResourceProgress{}
	if err := t.Order("user_id, topic_id, resource_id").Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	goals := []*types.TopicGoal{}
	if err := t.Order("user_id, topic_id").Find(&goals).Error; err != nil {
		return nil, nil, err
	}
	return rows, goals, nil
}

// ListByUser returns one user's mirrored rows and goals.
func (r *progressRepo) ListByUser(dbc dbctx.Context, userID string) ([]*types.ResourceProgress, []*types.TopicGoal, error) {
	rows := []*types.ResourceProgress{}
	goals := []*types.TopicGoal{}
	if userID == "" {
		return rows, goals, nil
	}
	t := r.dbx(dbc)
	if err := t.Where("user_id = ?", userID).
		Order("topic_id, resource_id").
		Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	if err := t.Where("user_id = ?", userID).
		Order("topic_id").
		Find(&goals).Error; err != nil {
		return nil, nil, err
	}
	return rows, goals, nil
}
