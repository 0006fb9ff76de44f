package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleLibrarian Role = "librarian"
	RoleStudent   Role = "student"
	RoleTeacher   Role = "teacher"
)

func (r Role) Privileged() bool {
	return r == RoleLibrarian
}

// Actor is an already authenticated caller.
type Actor struct {
	UserID string `json:"userId"`
	Role   Role   `json:"role"`
}

func (a Actor) Privileged() bool {
	return a.Role.Privileged()
}

// CanActFor reports whether the actor may act on records owned by userID.
func (a Actor) CanActFor(userID string) bool {
	return a.Privileged() || (a.UserID != "" && a.UserID == userID)
}

type Paging struct {
	Page          int `json:"page"`
	PageSize      int `json:"pageSize"`
	TotalElements int `json:"totalElements"`
}

type ListBooks struct {
	Paging `json:",inline"`
	Items  []Book `json:"items"`
}

type Book struct {
	ID              string     `json:"id" db:"id"`
	ISBN            string     `json:"isbn" db:"isbn"`
	Title           string     `json:"title" db:"title"`
	Author          string     `json:"author" db:"author"`
	Category        string     `json:"category" db:"category"`
	Description     string     `json:"description" db:"description"`
	PublicationDate *time.Time `json:"publicationDate,omitempty" db:"publication_date"`
	TotalCopies     int        `json:"totalCopies" db:"total_copies"`
	AvailableCopies int        `json:"availableCopies" db:"available_copies"`
	Version         int64      `json:"-" db:"version"`
}

type CreateBookRequest struct {
	ISBN            string     `json:"isbn" validate:"required,max=32"`
	Title           string     `json:"title" validate:"required,max=255"`
	Author          string     `json:"author" validate:"required,max=255"`
	Category        string     `json:"category" validate:"max=128"`
	Description     string     `json:"description"`
	PublicationDate *time.Time `json:"publicationDate"`
	TotalCopies     int        `json:"totalCopies" validate:"gte=0"`
}

// BookPatch carries the fields of an edit; nil fields are left untouched.
type BookPatch struct {
	ISBN            *string    `json:"isbn" validate:"omitempty,max=32"`
	Title           *string    `json:"title" validate:"omitempty,max=255"`
	Author          *string    `json:"author" validate:"omitempty,max=255"`
	Category        *string    `json:"category" validate:"omitempty,max=128"`
	Description     *string    `json:"description"`
	PublicationDate *time.Time `json:"publicationDate"`
	TotalCopies     *int       `json:"totalCopies" validate:"omitempty,gte=0"`
}

type BookFilter struct {
	Category      string
	AvailableOnly bool
	Search        string
	Page          int
	Size          int
}

type LoanState string

const (
	LoanActive   LoanState = "ACTIVE"
	LoanReturned LoanState = "RETURNED"
)

type Loan struct {
	ID         string          `json:"id" db:"id"`
	BookID     string          `json:"bookId" db:"book_id"`
	UserID     string          `json:"userId" db:"user_id"`
	LoanDate   time.Time       `json:"loanDate" db:"loan_date"`
	DueDate    time.Time       `json:"dueDate" db:"due_date"`
	ReturnDate *time.Time      `json:"returnDate,omitempty" db:"return_date"`
	Fine       decimal.Decimal `json:"fine" db:"fine"`
	State      LoanState       `json:"state" db:"state"`
	Renewals   int             `json:"renewals" db:"renewals"`
}

type CreateLoanRequest struct {
	UserID string `json:"userId" validate:"required"`
	BookID string `json:"bookId" validate:"required"`
}

type LoanFilter struct {
	UserID string
	BookID string
	State  LoanState
}

type ReservationState string

const (
	ReservationPending   ReservationState = "PENDING"
	ReservationProcessed ReservationState = "PROCESSED"
	ReservationCancelled ReservationState = "CANCELLED"
	ReservationExpired   ReservationState = "EXPIRED"
)

type Reservation struct {
	ID              string           `json:"id" db:"id"`
	BookID          string           `json:"bookId" db:"book_id"`
	UserID          string           `json:"userId" db:"user_id"`
	ReservationDate time.Time        `json:"reservationDate" db:"reservation_date"`
	ExpirationDate  time.Time        `json:"expirationDate" db:"expiration_date"`
	State           ReservationState `json:"state" db:"state"`
	LoanID          *string          `json:"loanId,omitempty" db:"loan_id"`
}

// Live reports whether the reservation is pending and not yet past its expiration at now.
func (r Reservation) Live(now time.Time) bool {
	return r.State == ReservationPending && now.Before(r.ExpirationDate)
}

// EffectiveState applies lazy expiration.
func (r Reservation) EffectiveState(now time.Time) ReservationState {
	if r.State == ReservationPending && !now.Before(r.ExpirationDate) {
		return ReservationExpired
	}
	return r.State
}

type CreateReservationRequest struct {
	BookID string `json:"bookId" validate:"required"`
	UserID string `json:"userId"`
}

type ReservationFilter struct {
	UserID string
	BookID string
	State  ReservationState
	// LiveAt restricts pending reservations to those not expired at this instant.
	LiveAt *time.Time
}

type BookAvailableEvent struct {
	BookID          string    `json:"bookId"`
	AvailableCopies int       `json:"availableCopies"`
	TotalCopies     int       `json:"totalCopies"`
	OccurredAt      time.Time `json:"occurredAt"`
}

// InventoryDrift is a book whose available counter differs from total minus active loans.
type InventoryDrift struct {
	BookID          string `json:"bookId" db:"id"`
	ISBN            string `json:"isbn" db:"isbn"`
	TotalCopies     int    `json:"totalCopies" db:"total_copies"`
	AvailableCopies int    `json:"availableCopies" db:"available_copies"`
	ActiveLoans     int    `json:"activeLoans" db:"active_loans"`
}

func (d InventoryDrift) Expected() int {
	return d.TotalCopies - d.ActiveLoans
}

type SweepMsg struct {
	RequestedAt time.Time `json:"requestedAt"`
}
