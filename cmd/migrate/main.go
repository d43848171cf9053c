// Command migrate prepares the visits collection for the review queue. It
// creates the indexes the services rely on and gives legacy records an
// explicit verification_status.
package main

import (
	"Wayfarer/internal/configuration"
	"context"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"
)

func main() {
	timeout := flag.Duration("timeout", 5*time.Minute, "overall migration timeout")
	indexesOnly := flag.Bool("indexes-only", false, "create indexes and skip the status backfill")
	flag.Parse()

	configuration.LoadDotEnv()

	config, err := configuration.LoadConfig(configuration.ConfigPath())
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := configuration.NewLogger(config)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	repos, database, err := configuration.OpenRepositories(config, logger)
	if err != nil {
		logger.Fatal("open repositories", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	defer func() {
		if err := database.Client().Disconnect(context.Background()); err != nil {
			logger.Warn("mongo disconnect", zap.Error(err))
		}
	}()

	if err := repos.EnsureIndexes(ctx); err != nil {
		logger.Error("ensure indexes", zap.Error(err))
		return
	}
	logger.Info("indexes ensured", zap.String("database", config.Mongo.Database))

	if *indexesOnly {
		return
	}

	updated, err := repos.Visits.BackfillLegacyStatus(ctx)
	if err != nil {
		logger.Error("backfill verification status", zap.Error(err))
		return
	}
	logger.Info("verification status backfilled", zap.Int64("updated", updated))
}
