package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/Astemirdum/circulation-service/circulation/internal/errs"
	"github.com/Astemirdum/circulation-service/circulation/internal/model"
	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Repository interface {
	Books
	Loans
	Reservations
	// WithTx runs fn inside one transaction. Calls on an already transactional
	// repository join the outer transaction.
	WithTx(ctx context.Context, fn func(tx Repository) error) error
}

type Books interface {
	CreateBook(ctx context.Context, book model.Book) error
	GetBook(ctx context.Context, id string) (model.Book, error)
	// UpdateBook writes the descriptive fields and the isbn. Counters are untouched.
	UpdateBook(ctx context.Context, book model.Book) error
	DeleteBook(ctx context.Context, id string, version int64) error
	ListBooks(ctx context.Context, filter model.BookFilter) (model.ListBooks, error)
	ListCategories(ctx context.Context) ([]string, error)
	// SwapCopies stores new counters if the row is still at version.
	// A stale version yields errs.ErrConcurrencyConflict.
	SwapCopies(ctx context.Context, id string, version int64, total, available int) error
	InventoryDrift(ctx context.Context) ([]model.InventoryDrift, error)
}

type Loans interface {
	CreateLoan(ctx context.Context, loan model.Loan) error
	GetLoan(ctx context.Context, id string) (model.Loan, error)
	// CloseLoan moves an active loan to RETURNED, errs.ErrAlreadyReturned otherwise.
	CloseLoan(ctx context.Context, id string, returnDate time.Time, fine decimal.Decimal) error
	ExtendLoan(ctx context.Context, id string, dueDate time.Time) error
	ListLoans(ctx context.Context, filter model.LoanFilter) ([]model.Loan, error)
	CountLoans(ctx context.Context, filter model.LoanFilter) (int, error)
}

type Reservations interface {
	// LockUserReservations holds off other transactions reserving for userID
	// until the current transaction ends.
	LockUserReservations(ctx context.Context, userID string) error
	// CreateReservation yields errs.ErrDuplicateReservation when the user
	// already has a PENDING reservation on the book.
	CreateReservation(ctx context.Context, r model.Reservation) error
	GetReservation(ctx context.Context, id string) (model.Reservation, error)
	// TransitionReservation moves a PENDING reservation to a terminal state,
	// errs.ErrNotPending otherwise.
	TransitionReservation(ctx context.Context, id string, to model.ReservationState, loanID *string) error
	ListReservations(ctx context.Context, filter model.ReservationFilter) ([]model.Reservation, error)
	CountReservations(ctx context.Context, filter model.ReservationFilter) (int, error)
	ExpireReservations(ctx context.Context, now time.Time) (int, error)
	CancelBookReservations(ctx context.Context, bookID string) (int, error)
}

type Option func(r *repository)

// WithPlaceholder switches the bind variable format, sq.Question for sqlite.
func WithPlaceholder(p sq.PlaceholderFormat) Option {
	return func(r *repository) {
		r.qb = sq.StatementBuilder.PlaceholderFormat(p)
	}
}

// WithoutAdvisoryLocks is for drivers without pg_advisory_xact_lock. They
// must serialize writers some other way, as sqlite does with one connection.
func WithoutAdvisoryLocks() Option {
	return func(r *repository) {
		r.advisoryLocks = false
	}
}

// WithUniqueViolation sets the driver specific unique constraint classifier.
func WithUniqueViolation(fn func(error) bool) Option {
	return func(r *repository) {
		r.isUniqueViolation = fn
	}
}

type repository struct {
	db                *sqlx.DB
	ext               sqlx.ExtContext
	qb                sq.StatementBuilderType
	isUniqueViolation func(error) bool
	advisoryLocks     bool
	log               *zap.Logger
}

func NewRepository(db *sqlx.DB, log *zap.Logger, opts ...Option) (*repository, error) {
	if db == nil {
		return nil, errors.New("nil db")
	}
	r := &repository{
		db:                db,
		ext:               db,
		qb:                sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		isUniqueViolation: isPgUniqueViolation,
		advisoryLocks:     true,
		log:               log.Named("repo"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

const (
	booksTableName        = `books`
	loansTableName        = `loans`
	reservationsTableName = `reservations`
)

var (
	bookColumns        = []string{"id", "isbn", "title", "author", "category", "description", "publication_date", "total_copies", "available_copies", "version"}
	loanColumns        = []string{"id", "book_id", "user_id", "loan_date", "due_date", "return_date", "fine", "state", "renewals"}
	reservationColumns = []string{"id", "book_id", "user_id", "reservation_date", "expiration_date", "state", "loan_id"}
)

func isPgUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

func (r *repository) WithTx(ctx context.Context, fn func(tx Repository) error) (err error) {
	if r.db == nil {
		return fn(r)
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()
	txRepo := &repository{
		ext:               tx,
		qb:                r.qb,
		isUniqueViolation: r.isUniqueViolation,
		advisoryLocks:     r.advisoryLocks,
		log:               r.log,
	}
	if err = fn(txRepo); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			r.log.Error("rollback", zap.Error(rbErr))
		}
		return err
	}
	return errors.Wrap(tx.Commit(), "commit")
}

func (r *repository) exec(ctx context.Context, b sq.Sqlizer) (int64, error) {
	q, args, err := b.ToSql()
	if err != nil {
		return 0, err
	}
	res, err := r.ext.ExecContext(ctx, q, args...)
	if err != nil {
		r.log.Debug("exec", zap.String("q", q), zap.Any("args", args), zap.Error(err))
		return 0, err
	}
	return res.RowsAffected()
}

func (r *repository) get(ctx context.Context, dest any, b sq.Sqlizer) error {
	q, args, err := b.ToSql()
	if err != nil {
		return err
	}
	if err := sqlx.GetContext(ctx, r.ext, dest, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errs.ErrNotFound
		}
		r.log.Error("get", zap.String("q", q), zap.Any("args", args), zap.Error(err))
		return err
	}
	return nil
}

func (r *repository) selectAll(ctx context.Context, dest any, b sq.Sqlizer) error {
	q, args, err := b.ToSql()
	if err != nil {
		return err
	}
	r.log.Debug("select", zap.String("q", q), zap.Any("args", args))
	return sqlx.SelectContext(ctx, r.ext, dest, q, args...)
}

func (r *repository) CreateBook(ctx context.Context, book model.Book) error {
	_, err := r.exec(ctx, r.qb.Insert(booksTableName).
		Columns(bookColumns...).
		Values(book.ID, book.ISBN, book.Title, book.Author, book.Category, book.Description,
			utcPtr(book.PublicationDate), book.TotalCopies, book.AvailableCopies, book.Version))
	if err != nil {
		if r.isUniqueViolation(err) {
			return errors.Wrapf(errs.ErrIsbnConflict, "isbn %q", book.ISBN)
		}
		return errors.Wrap(err, "CreateBook")
	}
	return nil
}

func (r *repository) GetBook(ctx context.Context, id string) (model.Book, error) {
	var book model.Book
	if err := r.get(ctx, &book, r.qb.Select(bookColumns...).
		From(booksTableName).
		Where(sq.Eq{"id": id}).
		Limit(1)); err != nil {
		return model.Book{}, errors.Wrapf(err, "book %s", id)
	}
	return book, nil
}

func (r *repository) UpdateBook(ctx context.Context, book model.Book) error {
	n, err := r.exec(ctx, r.qb.Update(booksTableName).
		SetMap(map[string]any{
			"isbn":             book.ISBN,
			"title":            book.Title,
			"author":           book.Author,
			"category":         book.Category,
			"description":      book.Description,
			"publication_date": utcPtr(book.PublicationDate),
		}).
		Where(sq.Eq{"id": book.ID}))
	if err != nil {
		if r.isUniqueViolation(err) {
			return errors.Wrapf(errs.ErrIsbnConflict, "isbn %q", book.ISBN)
		}
		return errors.Wrap(err, "UpdateBook")
	}
	if n == 0 {
		return errors.Wrapf(errs.ErrNotFound, "book %s", book.ID)
	}
	return nil
}

func (r *repository) DeleteBook(ctx context.Context, id string, version int64) error {
	n, err := r.exec(ctx, r.qb.Delete(booksTableName).
		Where(sq.Eq{"id": id, "version": version}))
	if err != nil {
		return errors.Wrap(err, "DeleteBook")
	}
	if n == 0 {
		return r.missingOrStale(ctx, id)
	}
	return nil
}

func (r *repository) SwapCopies(ctx context.Context, id string, version int64, total, available int) error {
	n, err := r.exec(ctx, r.qb.Update(booksTableName).
		Set("total_copies", total).
		Set("available_copies", available).
		Set("version", sq.Expr("version + 1")).
		Where(sq.Eq{"id": id, "version": version}))
	if err != nil {
		return errors.Wrap(err, "SwapCopies")
	}
	if n == 0 {
		return r.missingOrStale(ctx, id)
	}
	return nil
}

func (r *repository) missingOrStale(ctx context.Context, id string) error {
	var cnt int
	if err := r.get(ctx, &cnt, r.qb.Select("count(*)").From(booksTableName).Where(sq.Eq{"id": id})); err != nil {
		return err
	}
	if cnt == 0 {
		return errors.Wrapf(errs.ErrNotFound, "book %s", id)
	}
	return errors.Wrapf(errs.ErrConcurrencyConflict, "book %s", id)
}

func (r *repository) bookWhere(b sq.SelectBuilder, filter model.BookFilter) sq.SelectBuilder {
	if filter.Category != "" {
		b = b.Where(sq.Eq{"category": filter.Category})
	}
	if filter.AvailableOnly {
		b = b.Where(sq.Gt{"available_copies": 0})
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		pattern := "%" + strings.ToLower(s) + "%"
		b = b.Where(sq.Or{
			sq.Like{"LOWER(title)": pattern},
			sq.Like{"LOWER(author)": pattern},
		})
	}
	return b
}

func (r *repository) ListBooks(ctx context.Context, filter model.BookFilter) (model.ListBooks, error) {
	var total int
	if err := r.get(ctx, &total, r.bookWhere(r.qb.Select("count(*)").From(booksTableName), filter)); err != nil {
		return model.ListBooks{}, errors.Wrap(err, "ListBooks count")
	}

	q := r.bookWhere(r.qb.Select(bookColumns...).From(booksTableName), filter).OrderBy("title", "id")
	if filter.Page > 0 && filter.Size > 0 {
		q = q.Limit(uint64(filter.Size)).Offset(uint64((filter.Page - 1) * filter.Size))
	}
	books := make([]model.Book, 0)
	if err := r.selectAll(ctx, &books, q); err != nil {
		return model.ListBooks{}, errors.Wrap(err, "ListBooks")
	}
	return model.ListBooks{
		Paging: model.Paging{
			Page:          filter.Page,
			PageSize:      filter.Size,
			TotalElements: total,
		},
		Items: books,
	}, nil
}

func (r *repository) ListCategories(ctx context.Context) ([]string, error) {
	categories := make([]string, 0)
	err := r.selectAll(ctx, &categories, r.qb.Select("DISTINCT category").
		From(booksTableName).
		Where(sq.NotEq{"category": ""}).
		OrderBy("category"))
	return categories, errors.Wrap(err, "ListCategories")
}

func (r *repository) InventoryDrift(ctx context.Context) ([]model.InventoryDrift, error) {
	drift := make([]model.InventoryDrift, 0)
	err := r.selectAll(ctx, &drift, r.qb.Select("b.id", "b.isbn", "b.total_copies", "b.available_copies", "COUNT(l.id) AS active_loans").
		From(booksTableName+" b").
		LeftJoin(fmt.Sprintf("%s l ON l.book_id = b.id AND l.state = ?", loansTableName), string(model.LoanActive)).
		GroupBy("b.id", "b.isbn", "b.total_copies", "b.available_copies").
		Having("b.available_copies <> b.total_copies - COUNT(l.id)").
		OrderBy("b.id"))
	return drift, errors.Wrap(err, "InventoryDrift")
}

func (r *repository) CreateLoan(ctx context.Context, loan model.Loan) error {
	_, err := r.exec(ctx, r.qb.Insert(loansTableName).
		Columns(loanColumns...).
		Values(loan.ID, loan.BookID, loan.UserID, loan.LoanDate.UTC(), loan.DueDate.UTC(),
			utcPtr(loan.ReturnDate), loan.Fine, string(loan.State), loan.Renewals))
	return errors.Wrap(err, "CreateLoan")
}

func (r *repository) GetLoan(ctx context.Context, id string) (model.Loan, error) {
	var loan model.Loan
	if err := r.get(ctx, &loan, r.qb.Select(loanColumns...).
		From(loansTableName).
		Where(sq.Eq{"id": id}).
		Limit(1)); err != nil {
		return model.Loan{}, errors.Wrapf(err, "loan %s", id)
	}
	return loan, nil
}

func (r *repository) CloseLoan(ctx context.Context, id string, returnDate time.Time, fine decimal.Decimal) error {
	n, err := r.exec(ctx, r.qb.Update(loansTableName).
		Set("return_date", returnDate.UTC()).
		Set("fine", fine).
		Set("state", string(model.LoanReturned)).
		Where(sq.Eq{"id": id, "state": string(model.LoanActive)}))
	if err != nil {
		return errors.Wrap(err, "CloseLoan")
	}
	if n == 0 {
		return r.loanNotActive(ctx, id)
	}
	return nil
}

func (r *repository) ExtendLoan(ctx context.Context, id string, dueDate time.Time) error {
	n, err := r.exec(ctx, r.qb.Update(loansTableName).
		Set("due_date", dueDate.UTC()).
		Set("renewals", sq.Expr("renewals + 1")).
		Where(sq.Eq{"id": id, "state": string(model.LoanActive)}))
	if err != nil {
		return errors.Wrap(err, "ExtendLoan")
	}
	if n == 0 {
		return r.loanNotActive(ctx, id)
	}
	return nil
}

func (r *repository) loanNotActive(ctx context.Context, id string) error {
	if _, err := r.GetLoan(ctx, id); err != nil {
		return err
	}
	return errors.Wrapf(errs.ErrAlreadyReturned, "loan %s", id)
}

func loanWhere(b sq.SelectBuilder, filter model.LoanFilter) sq.SelectBuilder {
	if filter.UserID != "" {
		b = b.Where(sq.Eq{"user_id": filter.UserID})
	}
	if filter.BookID != "" {
		b = b.Where(sq.Eq{"book_id": filter.BookID})
	}
	if filter.State != "" {
		b = b.Where(sq.Eq{"state": string(filter.State)})
	}
	return b
}

func (r *repository) ListLoans(ctx context.Context, filter model.LoanFilter) ([]model.Loan, error) {
	loans := make([]model.Loan, 0)
	err := r.selectAll(ctx, &loans, loanWhere(r.qb.Select(loanColumns...).From(loansTableName), filter).
		OrderBy("loan_date DESC", "id"))
	return loans, errors.Wrap(err, "ListLoans")
}

func (r *repository) CountLoans(ctx context.Context, filter model.LoanFilter) (int, error) {
	var cnt int
	err := r.get(ctx, &cnt, loanWhere(r.qb.Select("count(*)").From(loansTableName), filter))
	return cnt, errors.Wrap(err, "CountLoans")
}

func (r *repository) LockUserReservations(ctx context.Context, userID string) error {
	if !r.advisoryLocks {
		return nil
	}
	_, err := r.exec(ctx, r.qb.Select().Column(sq.Expr("pg_advisory_xact_lock(hashtext(?))", reservationsTableName+":"+userID)))
	return errors.Wrap(err, "LockUserReservations")
}

func (r *repository) CreateReservation(ctx context.Context, rsv model.Reservation) error {
	_, err := r.exec(ctx, r.qb.Insert(reservationsTableName).
		Columns(reservationColumns...).
		Values(rsv.ID, rsv.BookID, rsv.UserID, rsv.ReservationDate.UTC(), rsv.ExpirationDate.UTC(),
			string(rsv.State), rsv.LoanID))
	if err != nil {
		if r.isUniqueViolation(err) {
			return errors.Wrapf(errs.ErrDuplicateReservation, "user %s book %s", rsv.UserID, rsv.BookID)
		}
		return errors.Wrap(err, "CreateReservation")
	}
	return nil
}

func (r *repository) GetReservation(ctx context.Context, id string) (model.Reservation, error) {
	var rsv model.Reservation
	if err := r.get(ctx, &rsv, r.qb.Select(reservationColumns...).
		From(reservationsTableName).
		Where(sq.Eq{"id": id}).
		Limit(1)); err != nil {
		return model.Reservation{}, errors.Wrapf(err, "reservation %s", id)
	}
	return rsv, nil
}

func (r *repository) TransitionReservation(ctx context.Context, id string, to model.ReservationState, loanID *string) error {
	n, err := r.exec(ctx, r.qb.Update(reservationsTableName).
		Set("state", string(to)).
		Set("loan_id", loanID).
		Where(sq.Eq{"id": id, "state": string(model.ReservationPending)}))
	if err != nil {
		return errors.Wrap(err, "TransitionReservation")
	}
	if n == 0 {
		if _, err := r.GetReservation(ctx, id); err != nil {
			return err
		}
		return errors.Wrapf(errs.ErrNotPending, "reservation %s", id)
	}
	return nil
}

func reservationWhere(b sq.SelectBuilder, filter model.ReservationFilter) sq.SelectBuilder {
	if filter.UserID != "" {
		b = b.Where(sq.Eq{"user_id": filter.UserID})
	}
	if filter.BookID != "" {
		b = b.Where(sq.Eq{"book_id": filter.BookID})
	}
	if filter.State != "" {
		b = b.Where(sq.Eq{"state": string(filter.State)})
	}
	if filter.LiveAt != nil {
		b = b.Where(sq.Gt{"expiration_date": filter.LiveAt.UTC()})
	}
	return b
}

func (r *repository) ListReservations(ctx context.Context, filter model.ReservationFilter) ([]model.Reservation, error) {
	items := make([]model.Reservation, 0)
	err := r.selectAll(ctx, &items, reservationWhere(r.qb.Select(reservationColumns...).From(reservationsTableName), filter).
		OrderBy("reservation_date DESC", "id"))
	return items, errors.Wrap(err, "ListReservations")
}

func (r *repository) CountReservations(ctx context.Context, filter model.ReservationFilter) (int, error) {
	var cnt int
	err := r.get(ctx, &cnt, reservationWhere(r.qb.Select("count(*)").From(reservationsTableName), filter))
	return cnt, errors.Wrap(err, "CountReservations")
}

func (r *repository) ExpireReservations(ctx context.Context, now time.Time) (int, error) {
	n, err := r.exec(ctx, r.qb.Update(reservationsTableName).
		Set("state", string(model.ReservationExpired)).
		Where(sq.Eq{"state": string(model.ReservationPending)}).
		Where(sq.LtOrEq{"expiration_date": now.UTC()}))
	return int(n), errors.Wrap(err, "ExpireReservations")
}

func (r *repository) CancelBookReservations(ctx context.Context, bookID string) (int, error) {
	n, err := r.exec(ctx, r.qb.Update(reservationsTableName).
		Set("state", string(model.ReservationCancelled)).
		Where(sq.Eq{"book_id": bookID, "state": string(model.ReservationPending)}))
	return int(n), errors.Wrap(err, "CancelBookReservations")
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
