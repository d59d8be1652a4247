package study

import (
	"errors"

	"gorm.io/gorm"

	types "github.com/yungbote/roadmap-tracker/internal/domain/progress"
	"github.com/yungbote/roadmap-tracker/internal/pkg/dbctx"
	"github.com/yungbote/roadmap-tracker/internal/platform/logger"
)

type StudySessionRepo interface {
	Create(dbc dbctx.Context, s *types.StudySession) error
	Update(dbc dbctx.Context, s *types.StudySession) error
	GetByID(dbc dbctx.Context, userID string, id string) (*types.StudySession, error)
	ListByUser(dbc dbctx.Context, userID string) ([]*types.StudySession, error)
}

type studySessionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewStudySessionRepo(db *gorm.DB, baseLog *logger.Logger) StudySessionRepo {
	return &studySessionRepo{db: db, log: baseLog.With("repo", "StudySessionRepo")}
}

func (r *studySessionRepo) dbx(dbc dbctx.Context) *gorm.DB {
	return dbc.DB(r.db)
}

func (r *studySessionRepo) Create(dbc dbctx.Context, s *types.StudySession) error {
	return r.dbx(dbc).Create(s).Error
}

// Update records the end of an open session. A session that is already
// ended is left alone and ErrSessionClosed is returned.
func (r *studySessionRepo) Update(dbc dbctx.Context, s *types.StudySession) error {
	res := r.dbx(dbc).
		Model(&types.StudySession{}).
		Where("id = ? AND user_id = ? AND end_time IS NULL", s.ID, s.UserID).
		Updates(map[string]interface{}{
			"end_time":         s.EndTime,
			"duration_minutes": s.DurationMinutes,
			"progress":         s.Progress,
			"updated_at":       s.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return types.ErrSessionClosed
	}
	return nil
}

func (r *studySessionRepo) GetByID(dbc dbctx.Context, userID string, id string) (*types.StudySession, error) {
	var out types.StudySession
	err := r.dbx(dbc).
		Where("id = ? AND user_id = ?", id, userID).
		First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *studySessionRepo) ListByUser(dbc dbctx.Context, userID string) ([]*types.StudySession, error) {
	out := []*types.StudySession{}
	if userID == "" {
		return out, nil
	}
	if err := r.dbx(dbc).
		Where("user_id = ?", userID).
		Order("start_time ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
