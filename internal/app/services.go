package app

import (
	"fmt"

	"github.com/yungbote/roadmap-tracker/internal/catalog"
	"github.com/yungbote/roadmap-tracker/internal/platform/logger"
	"github.com/yungbote/roadmap-tracker/internal/progress"
	"github.com/yungbote/roadmap-tracker/internal/services"
	"github.com/yungbote/roadmap-tracker/internal/study"
)

type Services struct {
	Auth    services.AuthService
	Catalog *catalog.Catalog
	Ledger  *progress.Ledger
	Study   *study.Service
}

func wireServices(log *logger.Logger, cfg Config, reposet Repos) (Services, error) {
	log.Info("Wiring services...")

	auth, err := services.NewAuthService(log, cfg.Auth)
	if err != nil {
		return Services{}, fmt.Errorf("init auth: %w", err)
	}

	return Services{
		Auth: auth,
		Ledger: progress.NewLedger(log,
			progress.WithLocation(cfg.TimeZone),
			progress.WithMirror(reposet.Progress),
			progress.WithMirrorTimeout(cfg.MirrorTimeout),
		),
		Study: study.NewService(reposet.StudySession, log, study.WithLocation(cfg.TimeZone)),
	}, nil
}

func loadCatalog(cfg Config) (*catalog.Catalog, error) {
	if cfg.CatalogPath == "" {
		return catalog.Default()
	}
	return catalog.Load(cfg.CatalogPath)
}
