package service

import (
	"context"
	"strings"

	"github.com/Astemirdum/circulation-service/circulation/internal/errs"
	"github.com/Astemirdum/circulation-service/circulation/internal/model"
	"github.com/Astemirdum/circulation-service/circulation/internal/repository"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

func (s *Service) CreateBook(ctx context.Context, actor model.Actor, req model.CreateBookRequest) (model.Book, error) {
	if !actor.Privileged() {
		return model.Book{}, errors.Wrap(errs.ErrForbidden, "create book")
	}
	book := model.Book{
		ID:              uuid.NewString(),
		ISBN:            strings.TrimSpace(req.ISBN),
		Title:           strings.TrimSpace(req.Title),
		Author:          strings.TrimSpace(req.Author),
		Category:        strings.TrimSpace(req.Category),
		Description:     req.Description,
		PublicationDate: req.PublicationDate,
		TotalCopies:     req.TotalCopies,
		AvailableCopies: req.TotalCopies,
	}
	switch {
	case book.ISBN == "", book.Title == "", book.Author == "":
		return model.Book{}, errors.Wrap(errs.ErrInvalidArgument, "isbn, title and author are required")
	case book.TotalCopies < 0:
		return model.Book{}, errors.Wrapf(errs.ErrInvalidArgument, "total copies %d", book.TotalCopies)
	}

	err := s.inTx(ctx, func(tx repository.Repository) error {
		return tx.CreateBook(ctx, book)
	})
	if err != nil {
		return model.Book{}, err
	}
	s.log.Info("book created", zap.String("bookID", book.ID), zap.String("isbn", book.ISBN))
	return book, nil
}

// UpdateBook applies an edit. A change of total copies goes through resizeTotal
// in the same transaction as the descriptive fields.
func (s *Service) UpdateBook(ctx context.Context, actor model.Actor, id string, patch model.BookPatch) (model.Book, error) {
	if !actor.Privileged() {
		return model.Book{}, errors.Wrap(errs.ErrForbidden, "update book")
	}

	var (
		book   model.Book
		change copyChange
	)
	err := s.inTx(ctx, func(tx repository.Repository) error {
		change = copyChange{}
		var err error
		book, err = tx.GetBook(ctx, id)
		if err != nil {
			return err
		}
		if err := applyPatch(&book, patch); err != nil {
			return err
		}
		if err := tx.UpdateBook(ctx, book); err != nil {
			return err
		}
		if patch.TotalCopies != nil && *patch.TotalCopies != book.TotalCopies {
			if change, err = s.resizeTotal(ctx, tx, id, *patch.TotalCopies); err != nil {
				return err
			}
		}
		book, err = tx.GetBook(ctx, id)
		return err
	})
	if err != nil {
		return model.Book{}, err
	}
	s.notify(ctx, change)
	return book, nil
}

func applyPatch(book *model.Book, patch model.BookPatch) error {
	if patch.ISBN != nil {
		isbn := strings.TrimSpace(*patch.ISBN)
		if isbn != book.ISBN {
			// an isbn is assigned once
			if book.ISBN != "" {
				return errors.Wrapf(errs.ErrIsbnConflict, "isbn of book %s is already %q", book.ID, book.ISBN)
			}
			book.ISBN = isbn
		}
	}
	if patch.Title != nil {
		if strings.TrimSpace(*patch.Title) == "" {
			return errors.Wrap(errs.ErrInvalidArgument, "title is required")
		}
		book.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Author != nil {
		if strings.TrimSpace(*patch.Author) == "" {
			return errors.Wrap(errs.ErrInvalidArgument, "author is required")
		}
		book.Author = strings.TrimSpace(*patch.Author)
	}
	if patch.Category != nil {
		book.Category = strings.TrimSpace(*patch.Category)
	}
	if patch.Description != nil {
		book.Description = *patch.Description
	}
	if patch.PublicationDate != nil {
		book.PublicationDate = patch.PublicationDate
	}
	if patch.TotalCopies != nil && *patch.TotalCopies < 0 {
		return errors.Wrapf(errs.ErrInvalidArgument, "total copies %d", *patch.TotalCopies)
	}
	return nil
}

// DeleteBook removes a book nobody holds. Pending reservations on it are cancelled.
func (s *Service) DeleteBook(ctx context.Context, actor model.Actor, id string) error {
	if !actor.Privileged() {
		return errors.Wrap(errs.ErrForbidden, "delete book")
	}
	var cancelled int
	err := s.inTx(ctx, func(tx repository.Repository) error {
		book, err := tx.GetBook(ctx, id)
		if err != nil {
			return err
		}
		active, err := tx.CountLoans(ctx, model.LoanFilter{BookID: id, State: model.LoanActive})
		if err != nil {
			return err
		}
		if active > 0 {
			return errors.Wrapf(errs.ErrHasActiveLoans, "book %s has %d", id, active)
		}
		if cancelled, err = tx.CancelBookReservations(ctx, id); err != nil {
			return err
		}
		return tx.DeleteBook(ctx, id, book.Version)
	})
	if err != nil {
		return err
	}
	s.log.Info("book deleted", zap.String("bookID", id), zap.Int("cancelledReservations", cancelled))
	return nil
}

func (s *Service) GetBook(ctx context.Context, id string) (model.Book, error) {
	return s.repo.GetBook(ctx, id)
}

func (s *Service) ListBooks(ctx context.Context, filter model.BookFilter) (model.ListBooks, error) {
	if filter.Page < 0 || filter.Size < 0 {
		return model.ListBooks{}, errors.Wrap(errs.ErrInvalidArgument, "page and size must not be negative")
	}
	return s.repo.ListBooks(ctx, filter)
}

func (s *Service) ListCategories(ctx context.Context) ([]string, error) {
	return s.repo.ListCategories(ctx)
}
