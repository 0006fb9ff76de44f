package service

import (
	"context"
	"strings"
	"time"

	"github.com/Astemirdum/circulation-service/circulation/internal/errs"
	"github.com/Astemirdum/circulation-service/circulation/internal/model"
	"github.com/Astemirdum/circulation-service/circulation/internal/repository"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// CreateReservation queues a claim on a future copy. Stock is not touched.
// An empty user id reserves for the actor.
func (s *Service) CreateReservation(ctx context.Context, actor model.Actor, req model.CreateReservationRequest) (model.Reservation, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		userID = actor.UserID
	}
	if userID == "" {
		return model.Reservation{}, errors.Wrap(errs.ErrInvalidArgument, errs.ErrUserID.Error())
	}
	if !actor.CanActFor(userID) {
		return model.Reservation{}, errors.Wrap(errs.ErrForbidden, "reserve for another user")
	}
	bookID := strings.TrimSpace(req.BookID)

	var rsv model.Reservation
	err := s.inTx(ctx, func(tx repository.Repository) error {
		now := s.now()
		if err := tx.LockUserReservations(ctx, userID); err != nil {
			return err
		}
		book, err := tx.GetBook(ctx, bookID)
		if err != nil {
			return err
		}
		if book.TotalCopies < 1 {
			return errors.Wrapf(errs.ErrNotFound, "book %s has no copies", bookID)
		}

		if err := s.expireLapsed(ctx, tx, userID, bookID, now); err != nil {
			return err
		}

		live := model.ReservationFilter{UserID: userID, State: model.ReservationPending, LiveAt: &now}
		dup := live
		dup.BookID = bookID
		n, err := tx.CountReservations(ctx, dup)
		if err != nil {
			return err
		}
		if n > 0 {
			return errors.Wrapf(errs.ErrDuplicateReservation, "user %s book %s", userID, bookID)
		}

		n, err = tx.CountLoans(ctx, model.LoanFilter{UserID: userID, BookID: bookID, State: model.LoanActive})
		if err != nil {
			return err
		}
		if n > 0 {
			return errors.Wrapf(errs.ErrAlreadyBorrowed, "user %s book %s", userID, bookID)
		}

		n, err = tx.CountReservations(ctx, live)
		if err != nil {
			return err
		}
		if n >= s.policy.ReservationLimit {
			return errors.Wrapf(errs.ErrReservationLimitExceeded, "user %s holds %d", userID, n)
		}

		rsv = model.Reservation{
			ID:              uuid.NewString(),
			BookID:          bookID,
			UserID:          userID,
			ReservationDate: now,
			ExpirationDate:  now.Add(s.policy.ReservationWindow),
			State:           model.ReservationPending,
		}
		return tx.CreateReservation(ctx, rsv)
	})
	if err != nil {
		return model.Reservation{}, err
	}
	return rsv, nil
}

// expireLapsed stores the user's lapsed PENDING reservations on a book as
// EXPIRED, so only one PENDING row per user and book is ever stored.
func (s *Service) expireLapsed(ctx context.Context, tx repository.Repository, userID, bookID string, now time.Time) error {
	pending, err := tx.ListReservations(ctx, model.ReservationFilter{UserID: userID, BookID: bookID, State: model.ReservationPending})
	if err != nil {
		return err
	}
	for _, rsv := range pending {
		if rsv.Live(now) {
			continue
		}
		if err := tx.TransitionReservation(ctx, rsv.ID, model.ReservationExpired, nil); err != nil {
			return err
		}
	}
	return nil
}

// pendingReservation loads a reservation that may still be acted on. A pending
// reservation found past its expiration is stored as expired, and expired is
// set so the caller commits that before reporting errs.ErrNotPending.
func (s *Service) pendingReservation(ctx context.Context, tx repository.Repository, id string, actor model.Actor) (rsv model.Reservation, expired bool, err error) {
	rsv, err = tx.GetReservation(ctx, id)
	if err != nil {
		return rsv, false, err
	}
	if !actor.CanActFor(rsv.UserID) {
		return rsv, false, errors.Wrap(errs.ErrForbidden, "reservation of another user")
	}
	if rsv.State != model.ReservationPending {
		return rsv, false, errors.Wrapf(errs.ErrNotPending, "reservation %s is %s", id, rsv.State)
	}
	if !rsv.Live(s.now()) {
		if err := tx.TransitionReservation(ctx, rsv.ID, model.ReservationExpired, nil); err != nil {
			return rsv, false, err
		}
		rsv.State = model.ReservationExpired
		return rsv, true, nil
	}
	return rsv, false, nil
}

func (s *Service) CancelReservation(ctx context.Context, actor model.Actor, id string) (model.Reservation, error) {
	var (
		rsv     model.Reservation
		expired bool
	)
	err := s.inTx(ctx, func(tx repository.Repository) (err error) {
		rsv, expired, err = s.pendingReservation(ctx, tx, id, actor)
		if err != nil || expired {
			return err
		}
		if err := tx.TransitionReservation(ctx, rsv.ID, model.ReservationCancelled, nil); err != nil {
			return err
		}
		rsv.State = model.ReservationCancelled
		return nil
	})
	if err != nil {
		return model.Reservation{}, err
	}
	if expired {
		return model.Reservation{}, errors.Wrapf(errs.ErrNotPending, "reservation %s expired", id)
	}
	return rsv, nil
}

// ProcessReservation turns a live reservation into a loan. The loan and the
// state change commit together; when no copy is free the reservation stays pending.
func (s *Service) ProcessReservation(ctx context.Context, actor model.Actor, id string) (model.Loan, error) {
	if !actor.Privileged() {
		return model.Loan{}, errors.Wrap(errs.ErrForbidden, "process reservation")
	}
	var (
		loan    model.Loan
		expired bool
	)
	err := s.inTx(ctx, func(tx repository.Repository) error {
		rsv, exp, err := s.pendingReservation(ctx, tx, id, actor)
		expired = exp
		if err != nil || exp {
			return err
		}
		loan, err = s.openLoan(ctx, tx, rsv.UserID, rsv.BookID, s.now())
		if err != nil {
			return err
		}
		return tx.TransitionReservation(ctx, rsv.ID, model.ReservationProcessed, &loan.ID)
	})
	if err != nil {
		return model.Loan{}, err
	}
	if expired {
		return model.Loan{}, errors.Wrapf(errs.ErrNotPending, "reservation %s expired", id)
	}
	s.log.Info("reservation processed", zap.String("reservationID", id), zap.String("loanID", loan.ID))
	return loan, nil
}

// ExpirePastDue stores every pending reservation past its expiration as expired.
func (s *Service) ExpirePastDue(ctx context.Context) (int, error) {
	var n int
	err := s.inTx(ctx, func(tx repository.Repository) (err error) {
		n, err = tx.ExpireReservations(ctx, s.now())
		return err
	})
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info("reservations expired", zap.Int("count", n))
	}
	return n, nil
}

// ExpirePastDueAs is ExpirePastDue behind the librarian check used by the HTTP route.
func (s *Service) ExpirePastDueAs(ctx context.Context, actor model.Actor) (int, error) {
	if !actor.Privileged() {
		return 0, errors.Wrap(errs.ErrForbidden, "expire reservations")
	}
	return s.ExpirePastDue(ctx)
}

func (s *Service) GetReservation(ctx context.Context, actor model.Actor, id string) (model.Reservation, error) {
	rsv, err := s.repo.GetReservation(ctx, id)
	if err != nil {
		return model.Reservation{}, err
	}
	if !actor.CanActFor(rsv.UserID) {
		return model.Reservation{}, errors.Wrap(errs.ErrForbidden, "get reservation")
	}
	rsv.State = rsv.EffectiveState(s.now())
	return rsv, nil
}

// ListReservations reports lazily expired reservations as expired.
func (s *Service) ListReservations(ctx context.Context, actor model.Actor, filter model.ReservationFilter) ([]model.Reservation, error) {
	if !actor.Privileged() {
		if actor.UserID == "" {
			return nil, errors.Wrap(errs.ErrForbidden, errs.ErrUserID.Error())
		}
		filter.UserID = actor.UserID
	}
	now := s.now()
	want := filter.State
	switch want {
	case model.ReservationPending:
		filter.LiveAt = &now
	case model.ReservationExpired:
		// stored EXPIRED rows plus pending ones past their expiration
		filter.State = ""
	}
	items, err := s.repo.ListReservations(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := items[:0]
	for _, rsv := range items {
		rsv.State = rsv.EffectiveState(now)
		if want != "" && rsv.State != want {
			continue
		}
		out = append(out, rsv)
	}
	return out, nil
}
