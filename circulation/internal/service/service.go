package service

import (
	"context"
	"time"

	"github.com/Astemirdum/circulation-service/circulation/internal/model"
	"github.com/Astemirdum/circulation-service/circulation/internal/repository"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Publisher receives notifications after the transaction that caused them committed.
type Publisher interface {
	PublishBookAvailable(ctx context.Context, event model.BookAvailableEvent) error
}

type noopPublisher struct{}

func (noopPublisher) PublishBookAvailable(context.Context, model.BookAvailableEvent) error { return nil }

type Clock func() time.Time

// Policy holds the library rules that are not hard invariants.
type Policy struct {
	ReservationLimit  int
	ReservationWindow time.Duration
	LoanPeriod        time.Duration
	DailyFine         decimal.Decimal
	RetryAttempts     int
	RetryBaseDelay    time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		ReservationLimit:  3,
		ReservationWindow: 7 * day,
		LoanPeriod:        14 * day,
		DailyFine:         DefaultDailyFine,
		RetryAttempts:     defaultMaxAttempts,
		RetryBaseDelay:    defaultBaseDelay,
	}
}

type Service struct {
	repo   repository.Repository
	pub    Publisher
	policy Policy
	clock  Clock
	retry  retryConfig
	log    *zap.Logger
}

type Option func(s *Service)

func WithPublisher(pub Publisher) Option {
	return func(s *Service) {
		if pub != nil {
			s.pub = pub
		}
	}
}

func WithClock(clock Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithPolicy overrides the defaults with the non zero fields of p.
func WithPolicy(p Policy) Option {
	return func(s *Service) {
		if p.ReservationLimit > 0 {
			s.policy.ReservationLimit = p.ReservationLimit
		}
		if p.ReservationWindow > 0 {
			s.policy.ReservationWindow = p.ReservationWindow
		}
		if p.LoanPeriod > 0 {
			s.policy.LoanPeriod = p.LoanPeriod
		}
		if p.DailyFine.IsPositive() {
			s.policy.DailyFine = p.DailyFine
		}
		if p.RetryAttempts > 0 {
			s.policy.RetryAttempts = p.RetryAttempts
		}
		if p.RetryBaseDelay > 0 {
			s.policy.RetryBaseDelay = p.RetryBaseDelay
		}
	}
}

func NewService(repo repository.Repository, log *zap.Logger, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		pub:    noopPublisher{},
		policy: DefaultPolicy(),
		clock:  time.Now,
		log:    log.Named("service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.retry = retryConfig{
		maxAttempts:  s.policy.RetryAttempts,
		baseDelay:    s.policy.RetryBaseDelay,
		jitterFactor: defaultJitterFactor,
	}
	return s
}

func (s *Service) Policy() Policy {
	return s.policy
}

// now is what every stored timestamp is taken from.
func (s *Service) now() time.Time {
	return s.clock().UTC().Truncate(time.Second)
}

// inTx runs fn in a single transaction, repeating the whole transaction when
// a counter update lost the version race.
func (s *Service) inTx(ctx context.Context, fn func(tx repository.Repository) error) error {
	return retryOnConflict(ctx, s.retry, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, fn)
	})
}

// notify publishes after commit. Delivery failures never undo the committed change.
func (s *Service) notify(ctx context.Context, change copyChange) {
	if !change.reopened {
		return
	}
	event := model.BookAvailableEvent{
		BookID:          change.bookID,
		AvailableCopies: change.available,
		TotalCopies:     change.total,
		OccurredAt:      s.now(),
	}
	if err := s.pub.PublishBookAvailable(ctx, event); err != nil {
		s.log.Warn("publish book available", zap.String("bookID", change.bookID), zap.Error(err))
	}
}
