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
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func (s *Service) CreateLoan(ctx context.Context, actor model.Actor, req model.CreateLoanRequest) (model.Loan, error) {
	if !actor.Privileged() {
		return model.Loan{}, errors.Wrap(errs.ErrForbidden, "create loan")
	}
	userID, bookID := strings.TrimSpace(req.UserID), strings.TrimSpace(req.BookID)
	if userID == "" {
		return model.Loan{}, errors.Wrap(errs.ErrInvalidArgument, errs.ErrUserID.Error())
	}

	var loan model.Loan
	err := s.inTx(ctx, func(tx repository.Repository) (err error) {
		loan, err = s.openLoan(ctx, tx, userID, bookID, s.now())
		return err
	})
	if err != nil {
		return model.Loan{}, err
	}
	s.log.Info("loan created", zap.String("loanID", loan.ID), zap.String("bookID", bookID), zap.String("userID", userID))
	return loan, nil
}

// openLoan takes one copy and records the loan. It runs inside the caller's
// transaction and performs no capability check.
func (s *Service) openLoan(ctx context.Context, tx repository.Repository, userID, bookID string, now time.Time) (model.Loan, error) {
	if _, err := s.adjustAvailable(ctx, tx, bookID, -1); err != nil {
		return model.Loan{}, err
	}
	loan := model.Loan{
		ID:       uuid.NewString(),
		BookID:   bookID,
		UserID:   userID,
		LoanDate: now,
		DueDate:  now.Add(s.policy.LoanPeriod),
		Fine:     decimal.Zero,
		State:    model.LoanActive,
	}
	if err := tx.CreateLoan(ctx, loan); err != nil {
		return model.Loan{}, err
	}
	return loan, nil
}

func (s *Service) ReturnLoan(ctx context.Context, actor model.Actor, loanID string) (model.Loan, error) {
	if !actor.Privileged() {
		return model.Loan{}, errors.Wrap(errs.ErrForbidden, "return loan")
	}

	var (
		loan   model.Loan
		change copyChange
	)
	err := s.inTx(ctx, func(tx repository.Repository) (err error) {
		loan, err = tx.GetLoan(ctx, loanID)
		if err != nil {
			return err
		}
		if loan.State != model.LoanActive {
			return errors.Wrapf(errs.ErrAlreadyReturned, "loan %s", loanID)
		}
		now := s.now()
		fine := Fine(loan.DueDate, now, s.policy.DailyFine)
		if err := tx.CloseLoan(ctx, loan.ID, now, fine); err != nil {
			return err
		}
		active, err := tx.CountLoans(ctx, model.LoanFilter{BookID: loan.BookID, State: model.LoanActive})
		if err != nil {
			return err
		}
		change, err = s.releaseCopy(ctx, tx, loan.BookID, active)
		if err != nil {
			return err
		}
		loan.ReturnDate = &now
		loan.Fine = fine
		loan.State = model.LoanReturned
		return nil
	})
	if err != nil {
		return model.Loan{}, err
	}
	s.log.Info("loan returned", zap.String("loanID", loan.ID), zap.String("fine", loan.Fine.StringFixed(2)))
	s.notify(ctx, change)
	return loan, nil
}

// RenewLoan pushes the due date one loan period past the current due date.
func (s *Service) RenewLoan(ctx context.Context, actor model.Actor, loanID string) (model.Loan, error) {
	var loan model.Loan
	err := s.inTx(ctx, func(tx repository.Repository) (err error) {
		loan, err = tx.GetLoan(ctx, loanID)
		if err != nil {
			return err
		}
		if !actor.CanActFor(loan.UserID) {
			return errors.Wrap(errs.ErrForbidden, "renew loan")
		}
		if loan.State != model.LoanActive {
			return errors.Wrapf(errs.ErrAlreadyReturned, "loan %s", loanID)
		}
		loan.DueDate = loan.DueDate.Add(s.policy.LoanPeriod)
		loan.Renewals++
		return tx.ExtendLoan(ctx, loan.ID, loan.DueDate)
	})
	if err != nil {
		return model.Loan{}, err
	}
	return loan, nil
}

func (s *Service) GetLoan(ctx context.Context, actor model.Actor, loanID string) (model.Loan, error) {
	loan, err := s.repo.GetLoan(ctx, loanID)
	if err != nil {
		return model.Loan{}, err
	}
	if !actor.CanActFor(loan.UserID) {
		return model.Loan{}, errors.Wrap(errs.ErrForbidden, "get loan")
	}
	return loan, nil
}

// ListLoans shows librarians everything and everybody else only their own loans.
func (s *Service) ListLoans(ctx context.Context, actor model.Actor, filter model.LoanFilter) ([]model.Loan, error) {
	if !actor.Privileged() {
		if actor.UserID == "" {
			return nil, errors.Wrap(errs.ErrForbidden, errs.ErrUserID.Error())
		}
		filter.UserID = actor.UserID
	}
	return s.repo.ListLoans(ctx, filter)
}
