package cli

import (
	"context"
	"fmt"

	"github.com/tOgg1/armada/internal/db"
	"github.com/tOgg1/armada/internal/skills"
	"github.com/tOgg1/armada/internal/task"
)

// app bundles the wired services a command needs. Commands open it,
// do their work, and close it before returning.
type app struct {
	db      *db.DB
	service *task.Service
	skills  *skills.Catalog
}

func newApp(ctx context.Context) (*app, error) {
	if appConfig == nil {
		return nil, fmt.Errorf("config not loaded")
	}

	database, err := db.Open(db.Config{
		Path:          appConfig.Database.Path,
		MaxOpenConns:  appConfig.Database.MaxConnections,
		BusyTimeoutMs: appConfig.Database.BusyTimeoutMs,
	})
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(ctx); err != nil {
		_ = database.Close()
		return nil, err
	}

	return &app{
		db:      database,
		service: task.NewService(appConfig, database),
		skills:  skills.NewCatalog(appConfig.Skills.GlobalDir, appConfig.Skills.LocalDir),
	}, nil
}

func (a *app) Close() {
	_ = a.db.Close()
}
