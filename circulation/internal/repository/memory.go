package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Astemirdum/circulation-service/circulation/internal/errs"
	"github.com/Astemirdum/circulation-service/circulation/internal/model"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

type memoryState struct {
	books        map[string]model.Book
	loans        map[string]model.Loan
	reservations map[string]model.Reservation
}

func newMemoryState() *memoryState {
	return &memoryState{
		books:        make(map[string]model.Book),
		loans:        make(map[string]model.Loan),
		reservations: make(map[string]model.Reservation),
	}
}

func (s *memoryState) clone() *memoryState {
	c := &memoryState{
		books:        make(map[string]model.Book, len(s.books)),
		loans:        make(map[string]model.Loan, len(s.loans)),
		reservations: make(map[string]model.Reservation, len(s.reservations)),
	}
	for k, v := range s.books {
		c.books[k] = v
	}
	for k, v := range s.loans {
		c.loans[k] = v
	}
	for k, v := range s.reservations {
		c.reservations[k] = v
	}
	return c
}

// MemoryRepository keeps everything in process memory. Transactions are
// serialized by one mutex and work on a copy of the state that replaces the
// live state on commit.
type MemoryRepository struct {
	mu    sync.Mutex
	state *memoryState
}

var _ Repository = (*MemoryRepository)(nil)

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{state: newMemoryState()}
}

func (m *MemoryRepository) WithTx(ctx context.Context, fn func(tx Repository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	next := m.state.clone()
	if err := fn(&memTx{state: next}); err != nil {
		return err
	}
	m.state = next
	return nil
}

func (m *MemoryRepository) live() *memTx {
	return &memTx{state: m.state}
}

func (m *MemoryRepository) CreateBook(ctx context.Context, book model.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live().CreateBook(ctx, book)
}

func (m *MemoryRepository) GetBook(ctx context.Context, id string) (model.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live().GetBook(ctx, id)
}

func (m *MemoryRepository) UpdateBook(ctx context.Context, book model.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live().UpdateBook(ctx, book)
}

func (m *MemoryRepository) DeleteBook(ctx context.Context, id string, version int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live().DeleteBook(ctx, id, version)
}

func (m *MemoryRepository) ListBooks(ctx context.Context, filter model.BookFilter) (model.ListBooks, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live().ListBooks(ctx, filter)
}

func (m *MemoryRepository) ListCategories(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live().ListCategories(ctx)
}

func (m *MemoryRepository) SwapCopies(ctx context.Context, id string, version int64, total, available int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live().SwapCopies(ctx, id, version, total, available)
}

func (m *MemoryRepository) InventoryDrift(ctx context.Context) ([]model.InventoryDrift, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live().InventoryDrift(ctx)
}

func (m *MemoryRepository) CreateLoan(ctx context.Context, loan model.Loan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live().CreateLoan(ctx, loan)
}

func (m *MemoryRepository) GetLoan(ctx context.Context, id string) (model.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live().GetLoan(ctx, id)
}

func (m *MemoryRepository) CloseLoan(ctx context.Context, id string, returnDate time.Time, fine decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live().CloseLoan(ctx, id, returnDate, fine)
}

func (m *MemoryRepository) ExtendLoan(ctx context.Context, id string, dueDate time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live().ExtendLoan(ctx, id, dueDate)
}

func (m *MemoryRepository) ListLoans(ctx context.Context, filter model.LoanFilter) ([]model.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live().ListLoans(ctx, filter)
}

func (m *MemoryRepository) CountLoans(ctx context.Context, filter model.LoanFilter) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live().CountLoans(ctx, filter)
}

func (m *MemoryRepository) LockUserReservations(context.Context, string) error {
	return nil
}

func (m *MemoryRepository) CreateReservation(ctx context.Context, r model.Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live().CreateReservation(ctx, r)
}

func (m *MemoryRepository) GetReservation(ctx context.Context, id string) (model.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live().GetReservation(ctx, id)
}

func (m *MemoryRepository) TransitionReservation(ctx context.Context, id string, to model.ReservationState, loanID *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live().TransitionReservation(ctx, id, to, loanID)
}

func (m *MemoryRepository) ListReservations(ctx context.Context, filter model.ReservationFilter) ([]model.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live().ListReservations(ctx, filter)
}

func (m *MemoryRepository) CountReservations(ctx context.Context, filter model.ReservationFilter) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live().CountReservations(ctx, filter)
}

func (m *MemoryRepository) ExpireReservations(ctx context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live().ExpireReservations(ctx, now)
}

func (m *MemoryRepository) CancelBookReservations(ctx context.Context, bookID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live().CancelBookReservations(ctx, bookID)
}

// memTx works on a state owned by the caller; it does no locking.
type memTx struct {
	state *memoryState
}

func (t *memTx) WithTx(_ context.Context, fn func(tx Repository) error) error {
	return fn(t)
}

func (t *memTx) isbnTaken(isbn, exceptID string) bool {
	if isbn == "" {
		return false
	}
	for id, b := range t.state.books {
		if id != exceptID && b.ISBN == isbn {
			return true
		}
	}
	return false
}

func (t *memTx) CreateBook(_ context.Context, book model.Book) error {
	if t.isbnTaken(book.ISBN, "") {
		return errors.Wrapf(errs.ErrIsbnConflict, "isbn %q", book.ISBN)
	}
	t.state.books[book.ID] = book
	return nil
}

func (t *memTx) GetBook(_ context.Context, id string) (model.Book, error) {
	b, ok := t.state.books[id]
	if !ok {
		return model.Book{}, errors.Wrapf(errs.ErrNotFound, "book %s", id)
	}
	return b, nil
}

func (t *memTx) UpdateBook(_ context.Context, book model.Book) error {
	cur, ok := t.state.books[book.ID]
	if !ok {
		return errors.Wrapf(errs.ErrNotFound, "book %s", book.ID)
	}
	if t.isbnTaken(book.ISBN, book.ID) {
		return errors.Wrapf(errs.ErrIsbnConflict, "isbn %q", book.ISBN)
	}
	cur.ISBN = book.ISBN
	cur.Title = book.Title
	cur.Author = book.Author
	cur.Category = book.Category
	cur.Description = book.Description
	cur.PublicationDate = book.PublicationDate
	t.state.books[book.ID] = cur
	return nil
}

func (t *memTx) DeleteBook(_ context.Context, id string, version int64) error {
	cur, ok := t.state.books[id]
	if !ok {
		return errors.Wrapf(errs.ErrNotFound, "book %s", id)
	}
	if cur.Version != version {
		return errors.Wrapf(errs.ErrConcurrencyConflict, "book %s", id)
	}
	delete(t.state.books, id)
	return nil
}

func (t *memTx) ListBooks(_ context.Context, filter model.BookFilter) (model.ListBooks, error) {
	search := strings.ToLower(strings.TrimSpace(filter.Search))
	items := make([]model.Book, 0)
	for _, b := range t.state.books {
		if filter.Category != "" && b.Category != filter.Category {
			continue
		}
		if filter.AvailableOnly && b.AvailableCopies <= 0 {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(b.Title), search) &&
			!strings.Contains(strings.ToLower(b.Author), search) {
			continue
		}
		items = append(items, b)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Title != items[j].Title {
			return items[i].Title < items[j].Title
		}
		return items[i].ID < items[j].ID
	})
	total := len(items)
	if filter.Page > 0 && filter.Size > 0 {
		from := (filter.Page - 1) * filter.Size
		if from > total {
			from = total
		}
		to := from + filter.Size
		if to > total {
			to = total
		}
		items = items[from:to]
	}
	return model.ListBooks{
		Paging: model.Paging{
			Page:          filter.Page,
			PageSize:      filter.Size,
			TotalElements: total,
		},
		Items: items,
	}, nil
}

func (t *memTx) ListCategories(_ context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	categories := make([]string, 0)
	for _, b := range t.state.books {
		if b.Category == "" {
			continue
		}
		if _, ok := seen[b.Category]; ok {
			continue
		}
		seen[b.Category] = struct{}{}
		categories = append(categories, b.Category)
	}
	sort.Strings(categories)
	return categories, nil
}

func (t *memTx) SwapCopies(_ context.Context, id string, version int64, total, available int) error {
	cur, ok := t.state.books[id]
	if !ok {
		return errors.Wrapf(errs.ErrNotFound, "book %s", id)
	}
	if cur.Version != version {
		return errors.Wrapf(errs.ErrConcurrencyConflict, "book %s", id)
	}
	cur.TotalCopies = total
	cur.AvailableCopies = available
	cur.Version++
	t.state.books[id] = cur
	return nil
}

func (t *memTx) InventoryDrift(_ context.Context) ([]model.InventoryDrift, error) {
	active := make(map[string]int)
	for _, l := range t.state.loans {
		if l.State == model.LoanActive {
			active[l.BookID]++
		}
	}
	drift := make([]model.InventoryDrift, 0)
	for _, b := range t.state.books {
		if b.AvailableCopies == b.TotalCopies-active[b.ID] {
			continue
		}
		drift = append(drift, model.InventoryDrift{
			BookID:          b.ID,
			ISBN:            b.ISBN,
			TotalCopies:     b.TotalCopies,
			AvailableCopies: b.AvailableCopies,
			ActiveLoans:     active[b.ID],
		})
	}
	sort.Slice(drift, func(i, j int) bool { return drift[i].BookID < drift[j].BookID })
	return drift, nil
}

func (t *memTx) CreateLoan(_ context.Context, loan model.Loan) error {
	t.state.loans[loan.ID] = loan
	return nil
}

func (t *memTx) GetLoan(_ context.Context, id string) (model.Loan, error) {
	l, ok := t.state.loans[id]
	if !ok {
		return model.Loan{}, errors.Wrapf(errs.ErrNotFound, "loan %s", id)
	}
	return l, nil
}

func (t *memTx) activeLoan(id string) (model.Loan, error) {
	l, ok := t.state.loans[id]
	if !ok {
		return model.Loan{}, errors.Wrapf(errs.ErrNotFound, "loan %s", id)
	}
	if l.State != model.LoanActive {
		return model.Loan{}, errors.Wrapf(errs.ErrAlreadyReturned, "loan %s", id)
	}
	return l, nil
}

func (t *memTx) CloseLoan(_ context.Context, id string, returnDate time.Time, fine decimal.Decimal) error {
	l, err := t.activeLoan(id)
	if err != nil {
		return err
	}
	rd := returnDate
	l.ReturnDate = &rd
	l.Fine = fine
	l.State = model.LoanReturned
	t.state.loans[id] = l
	return nil
}

func (t *memTx) ExtendLoan(_ context.Context, id string, dueDate time.Time) error {
	l, err := t.activeLoan(id)
	if err != nil {
		return err
	}
	l.DueDate = dueDate
	l.Renewals++
	t.state.loans[id] = l
	return nil
}

func loanMatches(l model.Loan, filter model.LoanFilter) bool {
	return (filter.UserID == "" || l.UserID == filter.UserID) &&
		(filter.BookID == "" || l.BookID == filter.BookID) &&
		(filter.State == "" || l.State == filter.State)
}

func (t *memTx) ListLoans(_ context.Context, filter model.LoanFilter) ([]model.Loan, error) {
	loans := make([]model.Loan, 0)
	for _, l := range t.state.loans {
		if loanMatches(l, filter) {
			loans = append(loans, l)
		}
	}
	sort.Slice(loans, func(i, j int) bool {
		if !loans[i].LoanDate.Equal(loans[j].LoanDate) {
			return loans[i].LoanDate.After(loans[j].LoanDate)
		}
		return loans[i].ID < loans[j].ID
	})
	return loans, nil
}

func (t *memTx) CountLoans(_ context.Context, filter model.LoanFilter) (int, error) {
	cnt := 0
	for _, l := range t.state.loans {
		if loanMatches(l, filter) {
			cnt++
		}
	}
	return cnt, nil
}

// LockUserReservations is a no-op: memory transactions are already serialized.
func (t *memTx) LockUserReservations(context.Context, string) error {
	return nil
}

func (t *memTx) CreateReservation(_ context.Context, r model.Reservation) error {
	if r.State == model.ReservationPending {
		for _, cur := range t.state.reservations {
			if cur.State == model.ReservationPending && cur.UserID == r.UserID && cur.BookID == r.BookID {
				return errors.Wrapf(errs.ErrDuplicateReservation, "user %s book %s", r.UserID, r.BookID)
			}
		}
	}
	t.state.reservations[r.ID] = r
	return nil
}

func (t *memTx) GetReservation(_ context.Context, id string) (model.Reservation, error) {
	r, ok := t.state.reservations[id]
	if !ok {
		return model.Reservation{}, errors.Wrapf(errs.ErrNotFound, "reservation %s", id)
	}
	return r, nil
}

func (t *memTx) TransitionReservation(_ context.Context, id string, to model.ReservationState, loanID *string) error {
	r, ok := t.state.reservations[id]
	if !ok {
		return errors.Wrapf(errs.ErrNotFound, "reservation %s", id)
	}
	if r.State != model.ReservationPending {
		return errors.Wrapf(errs.ErrNotPending, "reservation %s", id)
	}
	r.State = to
	r.LoanID = loanID
	t.state.reservations[id] = r
	return nil
}

func reservationMatches(r model.Reservation, filter model.ReservationFilter) bool {
	return (filter.UserID == "" || r.UserID == filter.UserID) &&
		(filter.BookID == "" || r.BookID == filter.BookID) &&
		(filter.State == "" || r.State == filter.State) &&
		(filter.LiveAt == nil || r.ExpirationDate.After(*filter.LiveAt))
}

func (t *memTx) ListReservations(_ context.Context, filter model.ReservationFilter) ([]model.Reservation, error) {
	items := make([]model.Reservation, 0)
	for _, r := range t.state.reservations {
		if reservationMatches(r, filter) {
			items = append(items, r)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].ReservationDate.Equal(items[j].ReservationDate) {
			return items[i].ReservationDate.After(items[j].ReservationDate)
		}
		return items[i].ID < items[j].ID
	})
	return items, nil
}

func (t *memTx) CountReservations(_ context.Context, filter model.ReservationFilter) (int, error) {
	cnt := 0
	for _, r := range t.state.reservations {
		if reservationMatches(r, filter) {
			cnt++
		}
	}
	return cnt, nil
}

func (t *memTx) ExpireReservations(_ context.Context, now time.Time) (int, error) {
	n := 0
	for id, r := range t.state.reservations {
		if r.State == model.ReservationPending && !r.ExpirationDate.After(now) {
			r.State = model.ReservationExpired
			t.state.reservations[id] = r
			n++
		}
	}
	return n, nil
}

func (t *memTx) CancelBookReservations(_ context.Context, bookID string) (int, error) {
	n := 0
	for id, r := range t.state.reservations {
		if r.BookID == bookID && r.State == model.ReservationPending {
			r.State = model.ReservationCancelled
			t.state.reservations[id] = r
			n++
		}
	}
	return n, nil
}
