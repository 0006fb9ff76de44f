package app

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Astemirdum/circulation-service/circulation/config"
	"github.com/Astemirdum/circulation-service/circulation/internal/events"
	"github.com/Astemirdum/circulation-service/circulation/internal/handler"
	"github.com/Astemirdum/circulation-service/circulation/internal/model"
	"github.com/Astemirdum/circulation-service/circulation/internal/repository"
	"github.com/Astemirdum/circulation-service/circulation/internal/server"
	"github.com/Astemirdum/circulation-service/circulation/internal/service"
	"github.com/Astemirdum/circulation-service/circulation/migrations"
	"github.com/Astemirdum/circulation-service/pkg/kafka"
	"github.com/Astemirdum/circulation-service/pkg/logger"
	"github.com/Astemirdum/circulation-service/pkg/postgres"
	"github.com/Astemirdum/circulation-service/pkg/sqlite"
	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const serviceName = "circulation"

// Run serves the HTTP API until SIGINT or SIGTERM. With kafka configured it
// also publishes availability events and listens for sweep requests.
func Run(cfg *config.Config) {
	log := logger.NewLogger(cfg.Log, serviceName)
	defer log.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Fatal("storage init", zap.String("driver", cfg.StorageDriver), zap.Error(err))
	}
	defer closeStore()

	policy, err := servicePolicy(cfg.Policy)
	if err != nil {
		log.Fatal("policy", zap.Error(err))
	}

	var pub service.Publisher = events.NewLogPublisher(log)
	if cfg.Kafka.Enabled() {
		producer, err := kafka.NewProducer(cfg.Kafka)
		if err != nil {
			log.Fatal("kafka.NewProducer", zap.Error(err))
		}
		defer producer.Close()
		pub = events.NewKafkaPublisher(producer, log)
	}
	svc := service.NewService(repo, log, service.WithPolicy(policy), service.WithPublisher(pub))

	h := handler.New(svc, log, handler.WithJWTSecret(cfg.Auth.JWTSecret))
	srv := server.NewServer(cfg.Server, h.NewRouter())

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http server start ON: ",
			zap.String("addr", net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)))
		return srv.Run()
	})
	g.Go(func() error {
		<-gCtx.Done()
		log.Debug("Graceful shutdown")
		closeCtx, cancel := context.WithTimeout(context.Background(), time.Second*5)
		defer cancel()
		return srv.Stop(closeCtx)
	})
	g.Go(func() error {
		sweep(gCtx, svc, cfg.Policy.SweepInterval, log)
		return nil
	})
	if cfg.Kafka.Enabled() {
		consumer, err := kafka.NewConsumer(cfg.Kafka, kafka.CirculationConsumerGroup)
		if err != nil {
			log.Fatal("kafka.NewConsumer", zap.Error(err))
		}
		g.Go(func() error {
			defer consumer.Close()
			return kafka.Consume(gCtx, consumer, handler.NewSweepConsumer(svc.ExpirePastDue, log), kafka.SweepTopic)
		})
	}

	if err := g.Wait(); err != nil {
		log.Error("circulation stopped", zap.Error(err))
		return
	}
	log.Info("Graceful shutdown finished")
}

// sweep expires overdue reservations on every tick. Reads already treat them
// as expired, so a missed tick only delays the stored state.
func sweep(ctx context.Context, svc *service.Service, interval time.Duration, log *zap.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := svc.ExpirePastDue(ctx); err != nil && ctx.Err() == nil {
				log.Warn("sweep", zap.Error(err))
			}
		}
	}
}

// Migrate applies the migrations of the configured sql driver.
func Migrate(cfg *config.Config) error {
	log := logger.NewLogger(cfg.Log, serviceName)
	_, closeStore, err := openStore(context.Background(), cfg, log)
	if err != nil {
		return err
	}
	closeStore()
	log.Info("migrations applied", zap.String("driver", cfg.StorageDriver))
	return nil
}

// Expire runs one sweep and reports how many reservations it expired.
func Expire(cfg *config.Config) (int, error) {
	svc, closeStore, err := newService(cfg)
	if err != nil {
		return 0, err
	}
	defer closeStore()
	return svc.ExpirePastDue(context.Background())
}

func Audit(cfg *config.Config) ([]model.InventoryDrift, error) {
	svc, closeStore, err := newService(cfg)
	if err != nil {
		return nil, err
	}
	defer closeStore()
	return svc.Audit(context.Background())
}

func newService(cfg *config.Config) (*service.Service, func(), error) {
	log := logger.NewLogger(cfg.Log, serviceName)
	policy, err := servicePolicy(cfg.Policy)
	if err != nil {
		return nil, nil, err
	}
	repo, closeStore, err := openStore(context.Background(), cfg, log)
	if err != nil {
		return nil, nil, err
	}
	return service.NewService(repo, log, service.WithPolicy(policy)), closeStore, nil
}

func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (repository.Repository, func(), error) {
	var (
		db   *sqlx.DB
		opts []repository.Option
		err  error
	)
	switch cfg.StorageDriver {
	case config.DriverMemory:
		return repository.NewMemoryRepository(), func() {}, nil
	case config.DriverPostgres:
		db, err = postgres.NewPostgresDB(ctx, &cfg.Database, migrations.MigrationFiles)
	case config.DriverSQLite:
		db, err = sqlite.NewSQLiteDB(ctx, &cfg.Sqlite, migrations.MigrationFiles)
		opts = append(opts,
			repository.WithPlaceholder(sq.Question),
			repository.WithUniqueViolation(sqlite.IsUniqueViolation),
			repository.WithoutAdvisoryLocks())
	default:
		return nil, nil, errors.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
	if err != nil {
		return nil, nil, err
	}
	repo, err := repository.NewRepository(db, log, opts...)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return repo, func() { _ = db.Close() }, nil
}

func servicePolicy(p config.Policy) (service.Policy, error) {
	fine, err := decimal.NewFromString(p.DailyFine)
	if err != nil {
		return service.Policy{}, errors.Wrapf(err, "daily fine %q", p.DailyFine)
	}
	if fine.IsNegative() {
		return service.Policy{}, errors.Errorf("daily fine %s is negative", fine)
	}
	return service.Policy{
		ReservationLimit:  p.ReservationLimit,
		ReservationWindow: p.ReservationWindow,
		LoanPeriod:        p.LoanPeriod,
		DailyFine:         fine,
		RetryAttempts:     p.RetryAttempts,
		RetryBaseDelay:    p.RetryBaseDelay,
	}, nil
}
