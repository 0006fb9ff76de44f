package service_test

import (
	"context"
	"testing"

	"github.com/Astemirdum/circulation-service/circulation/internal/errs"
	"github.com/Astemirdum/circulation-service/circulation/internal/model"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestCreateBook(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	req := model.CreateBookRequest{ISBN: "978-0134190440", Title: "The Go Programming Language", Author: "Donovan", TotalCopies: 4}
	book, err := f.svc.CreateBook(ctx, librarian, req)
	require.NoError(t, err)
	require.NotEmpty(t, book.ID)
	require.Equal(t, 4, book.AvailableCopies)

	_, err = f.svc.CreateBook(ctx, librarian, req)
	require.ErrorIs(t, err, errs.ErrIsbnConflict)

	_, err = f.svc.CreateBook(ctx, alice, model.CreateBookRequest{ISBN: "1", Title: "t", Author: "a"})
	require.ErrorIs(t, err, errs.ErrForbidden)

	_, err = f.svc.CreateBook(ctx, librarian, model.CreateBookRequest{ISBN: "2", Title: " ", Author: "a"})
	require.ErrorIs(t, err, errs.ErrInvalidArgument)

	_, err = f.svc.CreateBook(ctx, librarian, model.CreateBookRequest{ISBN: "3", Title: "t", Author: "a", TotalCopies: -1})
	require.ErrorIs(t, err, errs.ErrInvalidArgument)
}

func TestUpdateBook(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	book := f.addBook(t, 3)
	other := f.addBook(t, 1)
	f.lend(t, alice, book.ID)

	updated, err := f.svc.UpdateBook(ctx, librarian, book.ID, model.BookPatch{
		Title:       ptr("Go in Practice"),
		Category:    ptr("golang"),
		TotalCopies: ptr(5),
	})
	require.NoError(t, err)
	require.Equal(t, "Go in Practice", updated.Title)
	require.Equal(t, "golang", updated.Category)
	require.Equal(t, 5, updated.TotalCopies)
	require.Equal(t, 4, updated.AvailableCopies)
	require.Equal(t, updated, f.book(t, book.ID))
	f.requireConsistent(t, book.ID)

	_, err = f.svc.UpdateBook(ctx, librarian, book.ID, model.BookPatch{ISBN: ptr(other.ISBN)})
	require.ErrorIs(t, err, errs.ErrIsbnConflict)

	_, err = f.svc.UpdateBook(ctx, librarian, book.ID, model.BookPatch{ISBN: ptr(book.ISBN)})
	require.NoError(t, err)

	_, err = f.svc.UpdateBook(ctx, librarian, book.ID, model.BookPatch{TotalCopies: ptr(-2)})
	require.ErrorIs(t, err, errs.ErrInvalidArgument)

	_, err = f.svc.UpdateBook(ctx, alice, book.ID, model.BookPatch{Title: ptr("x")})
	require.ErrorIs(t, err, errs.ErrForbidden)

	_, err = f.svc.UpdateBook(ctx, librarian, "missing", model.BookPatch{Title: ptr("x")})
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestUpdateBook_ShrinkBelowLoans(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	book := f.addBook(t, 2)
	first := f.lend(t, alice, book.ID)
	f.lend(t, bob, book.ID)

	updated, err := f.svc.UpdateBook(ctx, librarian, book.ID, model.BookPatch{TotalCopies: ptr(1)})
	require.NoError(t, err)
	require.Equal(t, 1, updated.TotalCopies)
	require.Equal(t, 0, updated.AvailableCopies)

	drift, err := f.svc.AuditAs(ctx, librarian)
	require.NoError(t, err)
	require.Len(t, drift, 1)
	require.Equal(t, -1, drift[0].Expected())

	// bob still holds the only copy the book owns now
	_, err = f.svc.ReturnLoan(ctx, librarian, first.ID)
	require.NoError(t, err)
	require.Equal(t, 0, f.book(t, book.ID).AvailableCopies)
	f.requireConsistent(t, book.ID)
	require.Empty(t, f.pub.Events())
}

func TestReturnLoan_AfterShrinkBelowLoans(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	book := f.addBook(t, 3)
	first := f.lend(t, alice, book.ID)
	second := f.lend(t, bob, book.ID)

	_, err := f.svc.UpdateBook(ctx, librarian, book.ID, model.BookPatch{TotalCopies: ptr(1)})
	require.NoError(t, err)
	require.Equal(t, 0, f.book(t, book.ID).AvailableCopies)

	_, err = f.svc.ReturnLoan(ctx, librarian, first.ID)
	require.NoError(t, err)
	require.Equal(t, 0, f.book(t, book.ID).AvailableCopies)
	_, err = f.svc.CreateLoan(ctx, librarian, model.CreateLoanRequest{UserID: carol.UserID, BookID: book.ID})
	require.ErrorIs(t, err, errs.ErrOutOfStock)

	_, err = f.svc.ReturnLoan(ctx, librarian, second.ID)
	require.NoError(t, err)
	require.Equal(t, 1, f.book(t, book.ID).AvailableCopies)
	f.requireConsistent(t, book.ID)
	require.Len(t, f.pub.Events(), 1)

	for _, id := range []string{first.ID, second.ID} {
		loan, err := f.svc.GetLoan(ctx, librarian, id)
		require.NoError(t, err)
		require.Equal(t, model.LoanReturned, loan.State)
	}
	drift, err := f.svc.Audit(ctx)
	require.NoError(t, err)
	require.Empty(t, drift)

	require.NoError(t, f.svc.DeleteBook(ctx, librarian, book.ID))
}

func TestUpdateBook_ReopenPublishes(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	book := f.addBook(t, 1)
	f.lend(t, alice, book.ID)

	_, err := f.svc.UpdateBook(context.Background(), librarian, book.ID, model.BookPatch{TotalCopies: ptr(2)})
	require.NoError(t, err)
	events := f.pub.Events()
	require.Len(t, events, 1)
	require.Equal(t, 1, events[0].AvailableCopies)
}

func TestDeleteBook_ActiveLoanGuard(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	book := f.addBook(t, 2)
	loan := f.lend(t, alice, book.ID)
	rsv := f.reserve(t, bob, book.ID)

	err := f.svc.DeleteBook(ctx, librarian, book.ID)
	require.ErrorIs(t, err, errs.ErrHasActiveLoans)
	f.book(t, book.ID)

	require.ErrorIs(t, f.svc.DeleteBook(ctx, alice, book.ID), errs.ErrForbidden)

	_, err = f.svc.ReturnLoan(ctx, librarian, loan.ID)
	require.NoError(t, err)
	require.NoError(t, f.svc.DeleteBook(ctx, librarian, book.ID))

	_, err = f.svc.GetBook(ctx, book.ID)
	require.ErrorIs(t, err, errs.ErrNotFound)

	stored, err := f.repo.GetReservation(ctx, rsv.ID)
	require.NoError(t, err)
	require.Equal(t, model.ReservationCancelled, stored.State)

	require.ErrorIs(t, f.svc.DeleteBook(ctx, librarian, book.ID), errs.ErrNotFound)
}

func TestListBooks(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	for _, req := range []model.CreateBookRequest{
		{ISBN: "a-1", Title: "Dune", Author: "Frank Herbert", Category: "sci-fi", TotalCopies: 1},
		{ISBN: "a-2", Title: "Emma", Author: "Jane Austen", Category: "classics", TotalCopies: 0},
		{ISBN: "a-3", Title: "Persuasion", Author: "Jane Austen", Category: "classics", TotalCopies: 2},
	} {
		_, err := f.svc.CreateBook(ctx, librarian, req)
		require.NoError(t, err)
	}

	list, err := f.svc.ListBooks(ctx, model.BookFilter{Search: "austen"})
	require.NoError(t, err)
	require.Equal(t, 2, list.TotalElements)
	require.Equal(t, "Emma", list.Items[0].Title)

	list, err = f.svc.ListBooks(ctx, model.BookFilter{Category: "classics", AvailableOnly: true})
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	require.Equal(t, "Persuasion", list.Items[0].Title)

	list, err = f.svc.ListBooks(ctx, model.BookFilter{Page: 2, Size: 2})
	require.NoError(t, err)
	require.Equal(t, 3, list.TotalElements)
	require.Len(t, list.Items, 1)
	require.Equal(t, "Persuasion", list.Items[0].Title)

	_, err = f.svc.ListBooks(ctx, model.BookFilter{Page: -1})
	require.ErrorIs(t, err, errs.ErrInvalidArgument)

	categories, err := f.svc.ListCategories(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"classics", "sci-fi"}, categories)
}
