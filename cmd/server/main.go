package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/rpazevedo/escrowflow-backend/internal/adapter/audit"
	kafkaaudit "github.com/rpazevedo/escrowflow-backend/internal/adapter/audit/kafka"
	httpadapter "github.com/rpazevedo/escrowflow-backend/internal/adapter/http"
	"github.com/rpazevedo/escrowflow-backend/internal/adapter/repository/postgres"
	"github.com/rpazevedo/escrowflow-backend/internal/domain"
	"github.com/rpazevedo/escrowflow-backend/internal/usecase/admission"
	"github.com/rpazevedo/escrowflow-backend/internal/usecase/balance"
	"github.com/rpazevedo/escrowflow-backend/internal/usecase/lifecycle"
)

const defaultHTTPAddr = ":8080"

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Sprintf("failed to create logger: %v", err))
	}
	defer logger.Sync()

	// 1. Setup Database
	db, err := postgres.NewDB(dbConnectionString())
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// 2. Initialize Store and Repositories (Postgres)
	lockTimeout := getEnvDuration("LOCK_TIMEOUT", postgres.DefaultLockTimeout)
	store := postgres.NewStore(db, lockTimeout)
	scheduleRepo := postgres.NewScheduleRepository(db)
	jobRepo := postgres.NewJobRepository(db)

	// 3. Audit Trail: Kafka when brokers are configured, app log otherwise
	var trail domain.AuditTrail
	var publisher *kafkaaudit.Publisher
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		topic := getEnv("KAFKA_AUDIT_TOPIC", "escrow.audit")
		publisher, err = kafkaaudit.NewPublisher(strings.Split(brokers, ","), topic, logger)
		if err != nil {
			logger.Fatal("failed to create kafka audit publisher", zap.Error(err))
		}
		trail = publisher
	} else {
		trail = audit.NewLogTrail(logger)
	}

	// 4. Initialize Services (Use Cases)
	guardCfg := admission.DefaultConfig()
	guardCfg.LockRetries = getEnvInt("LOCK_RETRIES", guardCfg.LockRetries)
	if getEnv("ADMISSION_UNRESOLVED_POLICY", "fail_closed") == "fail_open" {
		guardCfg.Policy = admission.FailOpen
	}

	guard := admission.NewGuard(store, scheduleRepo, balance.NewService(), trail, logger, guardCfg)
	lifecycleService := lifecycle.NewService(jobRepo, trail, logger)

	// 5. Start HTTP Server
	server := httpadapter.NewServer(guard, lifecycleService, logger)
	addr := getEnv("HTTP_ADDR", defaultHTTPAddr)

	go func() {
		logger.Info("http server listening", zap.String("addr", addr))
		if err := server.Listen(addr); err != nil {
			logger.Fatal("failed to serve http", zap.Error(err))
		}
	}()

	waitForShutdown(server, publisher, logger)
}

// waitForShutdown waits for SIGTERM or SIGINT and gracefully shuts down
func waitForShutdown(server *httpadapter.Server, publisher *kafkaaudit.Publisher, logger *zap.Logger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigChan
	logger.Info("shutting down", zap.String("signal", sig.String()))

	if err := server.Shutdown(); err != nil {
		logger.Warn("http shutdown failed", zap.Error(err))
	}
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Warn("kafka publisher close failed", zap.Error(err))
		}
	}
}

// dbConnectionString assembles the postgres connection string from the
// environment (Docker friendly), falling back to local defaults.
func dbConnectionString() string {
	if connStr := os.Getenv("DB_CONN_STR"); connStr != "" {
		return connStr
	}

	host := getEnv("DB_HOST", "localhost")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "postgres")
	password := getEnv("DB_PASSWORD", "postgres")
	dbname := getEnv("DB_NAME", "escrowflow")

	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
