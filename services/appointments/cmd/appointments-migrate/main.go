package main

import (
	"flag"
	"os"

	"github.com/sytefy/backend/libs/config"
	"github.com/sytefy/backend/libs/db"
	"github.com/sytefy/backend/libs/runtime"
	"github.com/sytefy/backend/services/appointments/internal/migrations"
)

func main() {
	down := flag.Int("down", 0, "roll back this many migrations instead of migrating up")
	flag.Parse()

	if err := config.LoadDotEnv(); err != nil {
		panic(err)
	}
	logger := runtime.NewLogger("appointments-migrate", config.String("LOG_LEVEL", "info"))

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		logger.Error("missing configuration", "err", err)
		os.Exit(1)
	}

	if *down > 0 {
		if err := db.MigrateDown(dbURL, migrations.FS, migrations.Dir, *down); err != nil {
			logger.Error("migrate down failed", "err", err)
			os.Exit(1)
		}
		logger.Info("migrations rolled back", "steps", *down)
		return
	}

	version, err := db.Migrate(dbURL, migrations.FS, migrations.Dir)
	if err != nil {
		logger.Error("migrate up failed", "err", err)
		os.Exit(1)
	}
	logger.Info("migrations complete", "version", version)
}
