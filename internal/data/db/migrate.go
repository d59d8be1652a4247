package db

import (
	"fmt"

	"gorm.io/gorm"

	types "github.com/yungbote/roadmap-tracker/internal/domain/progress"
)

func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&types.ResourceProgress{},
		&types.TopicGoal{},
		&types.StudySession{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
