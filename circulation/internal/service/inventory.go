package service

import (
	"context"

	"github.com/Astemirdum/circulation-service/circulation/internal/errs"
	"github.com/Astemirdum/circulation-service/circulation/internal/repository"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// copyChange is the outcome of one counter mutation.
type copyChange struct {
	bookID    string
	total     int
	available int
	// reopened is set when availability went from zero to positive.
	reopened bool
}

// AdjustAvailable applies delta to the available copies of a book in its own transaction.
func (s *Service) AdjustAvailable(ctx context.Context, bookID string, delta int) (int, error) {
	var change copyChange
	err := s.inTx(ctx, func(tx repository.Repository) (err error) {
		change, err = s.adjustAvailable(ctx, tx, bookID, delta)
		return err
	})
	if err != nil {
		return 0, err
	}
	s.notify(ctx, change)
	return change.available, nil
}

// ResizeTotal sets the number of owned copies in its own transaction.
func (s *Service) ResizeTotal(ctx context.Context, bookID string, newTotal int) (int, error) {
	var change copyChange
	err := s.inTx(ctx, func(tx repository.Repository) (err error) {
		change, err = s.resizeTotal(ctx, tx, bookID, newTotal)
		return err
	})
	if err != nil {
		return 0, err
	}
	s.notify(ctx, change)
	return change.available, nil
}

// adjustAvailable is the only path that moves available copies for loans.
// The result must stay within [0, total]; nothing is written otherwise.
func (s *Service) adjustAvailable(ctx context.Context, tx repository.Repository, bookID string, delta int) (copyChange, error) {
	book, err := tx.GetBook(ctx, bookID)
	if err != nil {
		return copyChange{}, err
	}
	next := book.AvailableCopies + delta
	switch {
	case next < 0:
		return copyChange{}, errors.Wrapf(errs.ErrOutOfStock, "book %s", bookID)
	case next > book.TotalCopies:
		s.log.Error("available copies would exceed total",
			zap.String("bookID", bookID),
			zap.Int("available", book.AvailableCopies),
			zap.Int("total", book.TotalCopies),
			zap.Int("delta", delta))
		return copyChange{}, errors.Wrapf(errs.ErrInventoryInconsistent,
			"book %s: available %d + %d exceeds total %d", bookID, book.AvailableCopies, delta, book.TotalCopies)
	}
	if err := tx.SwapCopies(ctx, book.ID, book.Version, book.TotalCopies, next); err != nil {
		return copyChange{}, err
	}
	return copyChange{
		bookID:    book.ID,
		total:     book.TotalCopies,
		available: next,
		reopened:  book.AvailableCopies == 0 && next > 0,
	}, nil
}

// releaseCopy puts the copy of a just closed loan back. activeAfter is the
// number of loans still out on the book. While a shrink left more copies on
// loan than the book owns, the returned copy is retired instead of shelved.
func (s *Service) releaseCopy(ctx context.Context, tx repository.Repository, bookID string, activeAfter int) (copyChange, error) {
	book, err := tx.GetBook(ctx, bookID)
	if err != nil {
		return copyChange{}, err
	}
	if activeAfter+1 <= book.TotalCopies {
		return s.adjustAvailable(ctx, tx, bookID, +1)
	}
	next := book.TotalCopies - activeAfter
	if next < 0 {
		next = 0
	}
	if err := tx.SwapCopies(ctx, book.ID, book.Version, book.TotalCopies, next); err != nil {
		return copyChange{}, err
	}
	return copyChange{
		bookID:    book.ID,
		total:     book.TotalCopies,
		available: next,
		reopened:  book.AvailableCopies == 0 && next > 0,
	}, nil
}

// resizeTotal shifts available copies by the change in total. Copies on loan
// cannot be recalled, so a shrink never takes available below zero.
func (s *Service) resizeTotal(ctx context.Context, tx repository.Repository, bookID string, newTotal int) (copyChange, error) {
	if newTotal < 0 {
		return copyChange{}, errors.Wrapf(errs.ErrInvalidArgument, "total copies %d", newTotal)
	}
	book, err := tx.GetBook(ctx, bookID)
	if err != nil {
		return copyChange{}, err
	}
	next := book.AvailableCopies + newTotal - book.TotalCopies
	if next < 0 {
		s.log.Info("total shrunk below copies on loan",
			zap.String("bookID", bookID),
			zap.Int("oldTotal", book.TotalCopies),
			zap.Int("newTotal", newTotal),
			zap.Int("available", book.AvailableCopies))
		next = 0
	}
	if err := tx.SwapCopies(ctx, book.ID, book.Version, newTotal, next); err != nil {
		return copyChange{}, err
	}
	return copyChange{
		bookID:    book.ID,
		total:     newTotal,
		available: next,
		reopened:  book.AvailableCopies == 0 && next > 0,
	}, nil
}
