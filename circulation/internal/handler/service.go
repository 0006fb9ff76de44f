package handler

import (
	"context"

	"github.com/Astemirdum/circulation-service/circulation/internal/model"
	"github.com/Astemirdum/circulation-service/circulation/internal/service"
)

//go:generate go run github.com/golang/mock/mockgen -source=service.go -destination=mocks/mock.go

type CirculationService interface {
	CreateBook(ctx context.Context, actor model.Actor, req model.CreateBookRequest) (model.Book, error)
	UpdateBook(ctx context.Context, actor model.Actor, id string, patch model.BookPatch) (model.Book, error)
	DeleteBook(ctx context.Context, actor model.Actor, id string) error
	GetBook(ctx context.Context, id string) (model.Book, error)
	ListBooks(ctx context.Context, filter model.BookFilter) (model.ListBooks, error)
	ListCategories(ctx context.Context) ([]string, error)

	CreateLoan(ctx context.Context, actor model.Actor, req model.CreateLoanRequest) (model.Loan, error)
	ReturnLoan(ctx context.Context, actor model.Actor, loanID string) (model.Loan, error)
	RenewLoan(ctx context.Context, actor model.Actor, loanID string) (model.Loan, error)
	GetLoan(ctx context.Context, actor model.Actor, loanID string) (model.Loan, error)
	ListLoans(ctx context.Context, actor model.Actor, filter model.LoanFilter) ([]model.Loan, error)

	CreateReservation(ctx context.Context, actor model.Actor, req model.CreateReservationRequest) (model.Reservation, error)
	CancelReservation(ctx context.Context, actor model.Actor, id string) (model.Reservation, error)
	ProcessReservation(ctx context.Context, actor model.Actor, id string) (model.Loan, error)
	GetReservation(ctx context.Context, actor model.Actor, id string) (model.Reservation, error)
	ListReservations(ctx context.Context, actor model.Actor, filter model.ReservationFilter) ([]model.Reservation, error)
	ExpirePastDueAs(ctx context.Context, actor model.Actor) (int, error)

	AuditAs(ctx context.Context, actor model.Actor) ([]model.InventoryDrift, error)
}

var _ CirculationService = (*service.Service)(nil)
