package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Astemirdum/circulation-service/circulation/internal/model"
	"github.com/Astemirdum/circulation-service/circulation/internal/repository"
	"github.com/Astemirdum/circulation-service/circulation/internal/service"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var (
	librarian = model.Actor{UserID: "librarian-1", Role: model.RoleLibrarian}
	alice     = model.Actor{UserID: "alice", Role: model.RoleStudent}
	bob       = model.Actor{UserID: "bob", Role: model.RoleTeacher}
	carol     = model.Actor{UserID: "carol", Role: model.RoleStudent}
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.BookAvailableEvent
}

func (p *recordingPublisher) PublishBookAvailable(_ context.Context, event model.BookAvailableEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Events() []model.BookAvailableEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.BookAvailableEvent(nil), p.events...)
}

type fixture struct {
	svc   *service.Service
	repo  repository.Repository
	clock *testClock
	pub   *recordingPublisher
}

func newFixture(t *testing.T, opts ...service.Option) *fixture {
	t.Helper()
	return newFixtureWithRepo(t, repository.NewMemoryRepository(), opts...)
}

func newFixtureWithRepo(t *testing.T, repo repository.Repository, opts ...service.Option) *fixture {
	t.Helper()
	f := &fixture{
		repo:  repo,
		clock: newTestClock(),
		pub:   &recordingPublisher{},
	}
	opts = append([]service.Option{
		service.WithClock(f.clock.Now),
		service.WithPublisher(f.pub),
	}, opts...)
	f.svc = service.NewService(repo, zap.NewNop(), opts...)
	return f
}

func (f *fixture) addBook(t *testing.T, total int) model.Book {
	t.Helper()
	book, err := f.svc.CreateBook(context.Background(), librarian, model.CreateBookRequest{
		ISBN:        uuid.NewString()[:13],
		Title:       "The Go Programming Language",
		Author:      "Donovan, Kernighan",
		Category:    "programming",
		TotalCopies: total,
	})
	require.NoError(t, err)
	return book
}

func (f *fixture) book(t *testing.T, id string) model.Book {
	t.Helper()
	book, err := f.svc.GetBook(context.Background(), id)
	require.NoError(t, err)
	return book
}

func (f *fixture) lend(t *testing.T, user model.Actor, bookID string) model.Loan {
	t.Helper()
	loan, err := f.svc.CreateLoan(context.Background(), librarian, model.CreateLoanRequest{UserID: user.UserID, BookID: bookID})
	require.NoError(t, err)
	return loan
}

// requireConsistent checks the counters against the loans of the book.
func (f *fixture) requireConsistent(t *testing.T, bookID string) {
	t.Helper()
	book := f.book(t, bookID)
	require.GreaterOrEqual(t, book.AvailableCopies, 0)
	require.LessOrEqual(t, book.AvailableCopies, book.TotalCopies)

	active, err := f.repo.CountLoans(context.Background(), model.LoanFilter{BookID: bookID, State: model.LoanActive})
	require.NoError(t, err)
	require.Equal(t, book.TotalCopies-active, book.AvailableCopies)
}
