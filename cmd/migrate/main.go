package main

import (
	"context"
	"os"
	"time"

	"stock-ledger-service/config"
	"stock-ledger-service/internal/migrate"
	"stock-ledger-service/pkg/database"
	"stock-ledger-service/pkg/logger"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()
	isDev := os.Getenv("ENV") == "development"
	if err := logger.Init(isDev); err != nil {
		panic(err)
	}

	defer logger.Sync()

	log := logger.L()

	cfg := config.Load(log)
	if cfg.Store != config.StorePostgres {
		log.Fatal("Миграция нужна только для postgres", zap.String("store", cfg.Store))
	}

	db := database.ConnectDBForMigration(&cfg.DB.Config, log)
	defer database.CloseDB(db, log)

	// EXCLUDE-ограничение строит gist-индекс, на большой таблице это долго
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	started := time.Now()
	if err := migrate.MigrateLedgerDB(ctx, db, log, migrate.DefaultMigrateOptions()); err != nil {
		log.Fatal("Ошибка при выполнении миграции ledger", zap.String("db", cfg.DB.Name), zap.Error(err))
	}

	log.Info("Миграция ledger завершена",
		zap.String("db", cfg.DB.Name),
		zap.Duration("took", time.Since(started)),
	)
}
