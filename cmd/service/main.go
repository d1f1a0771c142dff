package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stock-ledger-service/config"
	"stock-ledger-service/internal/cache"
	"stock-ledger-service/internal/producer"
	"stock-ledger-service/internal/repository"
	"stock-ledger-service/internal/repository/memstore"
	"stock-ledger-service/internal/router"
	"stock-ledger-service/internal/service"
	"stock-ledger-service/pkg/database"
	"stock-ledger-service/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
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
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	var repos *repository.Repository
	switch cfg.Store {
	case config.StoreMemory:
		log.Warn("Используется in-memory хранилище, данные не переживут перезапуск")
		repos = memstore.New().Repository()
	default:
		db := database.ConnectDB(&cfg.DB.Config, log)
		defer database.CloseDB(db, log)
		repos = repository.New(db)
	}

	opt := service.DefaultOptions()
	opt.MaxRetries = cfg.Ledger.MaxRetries
	opt.TxTimeout = cfg.Ledger.TxTimeout
	opt.MaxRangeDays = cfg.Ledger.MaxRangeDays
	// HTTP binding не пропустит больше значений по умолчанию
	opt.MaxBatch = int32(min(cfg.Ledger.MaxBatch, int(service.DefaultMaxBatch)))
	opt.MaxQuantity = int32(min(cfg.Ledger.MaxQuantity, int(service.DefaultMaxQuantity)))
	svc := service.NewLedgerService(repos, log, opt)

	// Кэш доступности опционален
	if cfg.Redis.Enabled {
		rc, err := cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, log)
		if err != nil {
			log.Warn("Redis недоступен, кэш доступности отключён", zap.Error(err))
		} else {
			defer rc.Close()
			svc.WithCache(cache.NewAvailabilityCache(rc, time.Duration(cfg.Redis.TTLSeconds)*time.Second))
		}
	}

	if cfg.Kafka.Enabled {
		prod := producer.NewLedgerProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer func() {
			if err := prod.Close(); err != nil {
				log.Error("Ошибка закрытия Kafka producer", zap.Error(err))
			}
		}()
		svc.WithEvents(prod)
		log.Info("События склада публикуются в Kafka", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	httpServer := &http.Server{
		Addr:              cfg.Port,
		Handler:           router.Router(svc, log),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// gRPC нужен только для health-проб
	lis, err := net.Listen("tcp", cfg.GRPCHealthPort)
	if err != nil {
		log.Fatal("failed to listen", zap.String("addr", cfg.GRPCHealthPort), zap.Error(err))
	}
	grpcServer := grpc.NewServer()
	healthSrv := health.NewServer()
	healthSrv.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	grpc_health_v1.RegisterHealthServer(grpcServer, healthSrv)
	reflection.Register(grpcServer)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info("Starting health gRPC server", zap.String("addr", cfg.GRPCHealthPort))
		if err := grpcServer.Serve(lis); err != nil {
			log.Fatal("gRPC server failed", zap.Error(err))
		}
	}()

	go func() {
		log.Info("Starting Stock Ledger HTTP server", zap.String("addr", cfg.Port), zap.String("store", cfg.Store))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("failed to run http server", zap.Error(err))
		}
	}()

	<-quit
	log.Info("Shutting down Stock Ledger...")
	healthSrv.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error("HTTP server shutdown failed", zap.Error(err))
	}
	grpcServer.GracefulStop()
	log.Info("Stock Ledger stopped gracefully")
}
