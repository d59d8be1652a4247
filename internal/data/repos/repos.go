package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/roadmap-tracker/internal/data/repos/progress"
	"github.com/yungbote/roadmap-tracker/internal/data/repos/study"
	"github.com/yungbote/roadmap-tracker/internal/platform/logger"
)

type ProgressRepo = progress.ProgressRepo
type StudySessionRepo = study.StudySessionRepo

func NewProgressRepo(db *gorm.DB, baseLog *logger.Logger) ProgressRepo {
	return progress.NewProgressRepo(db, baseLog)
}

func NewStudySessionRepo(db *gorm.DB, baseLog *logger.Logger) StudySessionRepo {
	return study.NewStudySessionRepo(db, baseLog)
}
