package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/roadmap-tracker/internal/data/repos"
	"github.com/yungbote/roadmap-tracker/internal/platform/logger"
)

type Repos struct {
	Progress     repos.ProgressRepo
	StudySession repos.StudySessionRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Progress:     repos.NewProgressRepo(db, log),
		StudySession: repos.NewStudySessionRepo(db, log),
	}
}
