package handler

import (
	"net/http"
	"strings"

	"github.com/Astemirdum/circulation-service/circulation/internal/errs"
	"github.com/Astemirdum/circulation-service/circulation/internal/model"
	"github.com/Astemirdum/circulation-service/pkg/auth"
	mw "github.com/Astemirdum/circulation-service/pkg/middleware"
	"github.com/Astemirdum/circulation-service/pkg/validate"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	echoSwagger "github.com/swaggo/echo-swagger"
	"go.uber.org/zap"

	_ "github.com/Astemirdum/circulation-service/swagger"
)

type Handler struct {
	svc       CirculationService
	jwtSecret string
	log       *zap.Logger
}

type Option func(h *Handler)

// WithJWTSecret switches authentication from gateway headers to bearer tokens.
func WithJWTSecret(secret string) Option {
	return func(h *Handler) {
		h.jwtSecret = secret
	}
}

func New(svc CirculationService, log *zap.Logger, opts ...Option) *Handler {
	h := &Handler{
		svc: svc,
		log: log.Named("handler"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) NewRouter() *echo.Echo {
	e := echo.New()
	const (
		baseRPS = 10
		apiRPS  = 100
	)
	e.HideBanner = true
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 4 << 10, // 4 KB
	}))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{http.MethodGet, http.MethodOptions, http.MethodHead, http.MethodPatch, http.MethodPost, http.MethodDelete},
		AllowHeaders:     []string{echo.HeaderContentType, echo.HeaderAuthorization, auth.XUserIDHeader, auth.XUserRoleHeader},
		AllowCredentials: true,
	}))
	e.Validator = validate.NewCustomValidator()

	base := e.Group("", mw.NewRateLimiter(baseRPS))
	base.GET("/manage/health", h.Health)
	base.GET("/swagger/*", echoSwagger.WrapHandler)

	api := e.Group("/api/v1",
		middleware.RequestLoggerWithConfig(mw.RequestLoggerConfig(h.log)),
		middleware.RequestID(),
		mw.NewRateLimiter(apiRPS),
	)

	authMW := mw.AuthContext
	if h.jwtSecret != "" {
		authMW = mw.JwtAuthentication([]byte(h.jwtSecret))
	}

	api.GET("/books", h.ListBooks)
	api.GET("/books/categories", h.ListCategories)
	api.GET("/books/:id", h.GetBook)
	api.POST("/books", h.CreateBook, authMW)
	api.PATCH("/books/:id", h.UpdateBook, authMW)
	api.DELETE("/books/:id", h.DeleteBook, authMW)

	api.POST("/loans", h.CreateLoan, authMW)
	api.GET("/loans", h.ListLoans, authMW)
	api.GET("/loans/:id", h.GetLoan, authMW)
	api.POST("/loans/:id/return", h.ReturnLoan, authMW)
	api.POST("/loans/:id/renew", h.RenewLoan, authMW)

	api.POST("/reservations", h.CreateReservation, authMW)
	api.GET("/reservations", h.ListReservations, authMW)
	api.POST("/reservations/expire", h.ExpireReservations, authMW)
	api.GET("/reservations/:id", h.GetReservation, authMW)
	api.POST("/reservations/:id/cancel", h.CancelReservation, authMW)
	api.POST("/reservations/:id/process", h.ProcessReservation, authMW)

	api.GET("/audit", h.Audit, authMW)

	return e
}

func (h *Handler) Health(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

func actor(c echo.Context) (model.Actor, error) {
	userID, role, ok := auth.FromContext(c.Request().Context())
	if !ok {
		return model.Actor{}, echo.NewHTTPError(http.StatusUnauthorized, errs.ErrUserID.Error())
	}
	r := model.Role(strings.ToLower(role))
	switch r {
	case model.RoleLibrarian, model.RoleStudent, model.RoleTeacher:
	default:
		return model.Actor{}, echo.NewHTTPError(http.StatusUnauthorized, "unknown role")
	}
	return model.Actor{UserID: userID, Role: r}, nil
}

func pathID(c echo.Context) (string, error) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return "", echo.NewHTTPError(http.StatusBadRequest, "empty id")
	}
	return id, nil
}

// httpError maps engine errors to status codes. Inconsistent counters are
// reported as an anomaly in addition to the 500.
func (h *Handler) httpError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, errs.ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, errs.ErrInvalidArgument):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, errs.ErrConcurrencyConflict):
		c.Response().Header().Set("Retry-After", "1")
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, errs.ErrOutOfStock),
		errors.Is(err, errs.ErrAlreadyReturned),
		errors.Is(err, errs.ErrAlreadyBorrowed),
		errors.Is(err, errs.ErrDuplicateReservation),
		errors.Is(err, errs.ErrReservationLimitExceeded),
		errors.Is(err, errs.ErrHasActiveLoans),
		errors.Is(err, errs.ErrIsbnConflict),
		errors.Is(err, errs.ErrNotPending):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, errs.ErrInventoryInconsistent):
		h.log.Error("inventory anomaly",
			zap.String("method", c.Request().Method),
			zap.String("path", c.Request().URL.Path),
			zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	default:
		h.log.Error("internal", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

// ListBooks
// @Summary List books
// @Tags books
// @Produce json
// @Param category query string false "category"
// @Param available query bool false "only books with free copies"
// @Param search query string false "title or author substring"
// @Param page query int false "page"
// @Param size query int false "size"
// @Success 200 {object} model.ListBooks
// @Router /books [get]
func (h *Handler) ListBooks(c echo.Context) error {
	filter := model.BookFilter{
		Category: c.QueryParam("category"),
		Search:   c.QueryParam("search"),
	}
	if err := echo.QueryParamsBinder(c).
		Bool("available", &filter.AvailableOnly).
		Int("page", &filter.Page).
		Int("size", &filter.Size).
		BindError(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	books, err := h.svc.ListBooks(c.Request().Context(), filter)
	if err != nil {
		return h.httpError(c, err)
	}
	return c.JSON(http.StatusOK, books)
}

func (h *Handler) ListCategories(c echo.Context) error {
	categories, err := h.svc.ListCategories(c.Request().Context())
	if err != nil {
		return h.httpError(c, err)
	}
	return c.JSON(http.StatusOK, categories)
}

// GetBook
// @Summary Get book
// @Tags books
// @Produce json
// @Param id path string true "book id"
// @Success 200 {object} model.Book
// @Failure 404 {object} errs.ErrorResponse
// @Router /books/{id} [get]
func (h *Handler) GetBook(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	book, err := h.svc.GetBook(c.Request().Context(), id)
	if err != nil {
		return h.httpError(c, err)
	}
	return c.JSON(http.StatusOK, book)
}

// CreateBook
// @Summary Add a book to the catalog
// @Tags books
// @Accept json
// @Produce json
// @Param book body model.CreateBookRequest true "book"
// @Success 201 {object} model.Book
// @Failure 409 {object} errs.ErrorResponse
// @Router /books [post]
func (h *Handler) CreateBook(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	var req model.CreateBookRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	book, err := h.svc.CreateBook(c.Request().Context(), a, req)
	if err != nil {
		return h.httpError(c, err)
	}
	return c.JSON(http.StatusCreated, book)
}

// UpdateBook
// @Summary Edit a book, total copies included
// @Tags books
// @Accept json
// @Produce json
// @Param id path string true "book id"
// @Param patch body model.BookPatch true "changed fields"
// @Success 200 {object} model.Book
// @Router /books/{id} [patch]
func (h *Handler) UpdateBook(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var patch model.BookPatch
	if err := c.Bind(&patch); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(patch); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	book, err := h.svc.UpdateBook(c.Request().Context(), a, id, patch)
	if err != nil {
		return h.httpError(c, err)
	}
	return c.JSON(http.StatusOK, book)
}

// DeleteBook
// @Summary Remove a book without active loans
// @Tags books
// @Param id path string true "book id"
// @Success 204
// @Failure 409 {object} errs.ErrorResponse
// @Router /books/{id} [delete]
func (h *Handler) DeleteBook(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteBook(c.Request().Context(), a, id); err != nil {
		return h.httpError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// CreateLoan
// @Summary Lend a copy
// @Tags loans
// @Accept json
// @Produce json
// @Param loan body model.CreateLoanRequest true "borrower and book"
// @Success 201 {object} model.Loan
// @Failure 409 {object} errs.ErrorResponse
// @Router /loans [post]
func (h *Handler) CreateLoan(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	var req model.CreateLoanRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	loan, err := h.svc.CreateLoan(c.Request().Context(), a, req)
	if err != nil {
		return h.httpError(c, err)
	}
	return c.JSON(http.StatusCreated, loan)
}

func (h *Handler) ListLoans(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	filter := model.LoanFilter{
		UserID: c.QueryParam("userId"),
		BookID: c.QueryParam("bookId"),
		State:  model.LoanState(strings.ToUpper(c.QueryParam("state"))),
	}
	loans, err := h.svc.ListLoans(c.Request().Context(), a, filter)
	if err != nil {
		return h.httpError(c, err)
	}
	return c.JSON(http.StatusOK, loans)
}

func (h *Handler) GetLoan(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	loan, err := h.svc.GetLoan(c.Request().Context(), a, id)
	if err != nil {
		return h.httpError(c, err)
	}
	return c.JSON(http.StatusOK, loan)
}

// ReturnLoan
// @Summary Take a copy back and charge the late fine
// @Tags loans
// @Produce json
// @Param id path string true "loan id"
// @Success 200 {object} model.Loan
// @Failure 409 {object} errs.ErrorResponse
// @Router /loans/{id}/return [post]
func (h *Handler) ReturnLoan(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	loan, err := h.svc.ReturnLoan(c.Request().Context(), a, id)
	if err != nil {
		return h.httpError(c, err)
	}
	return c.JSON(http.StatusOK, loan)
}

func (h *Handler) RenewLoan(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	loan, err := h.svc.RenewLoan(c.Request().Context(), a, id)
	if err != nil {
		return h.httpError(c, err)
	}
	return c.JSON(http.StatusOK, loan)
}

// CreateReservation
// @Summary Reserve a book
// @Tags reservations
// @Accept json
// @Produce json
// @Param reservation body model.CreateReservationRequest true "book, and user for librarians"
// @Success 201 {object} model.Reservation
// @Failure 409 {object} errs.ErrorResponse
// @Router /reservations [post]
func (h *Handler) CreateReservation(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	var req model.CreateReservationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	rsv, err := h.svc.CreateReservation(c.Request().Context(), a, req)
	if err != nil {
		return h.httpError(c, err)
	}
	return c.JSON(http.StatusCreated, rsv)
}

func (h *Handler) ListReservations(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	filter := model.ReservationFilter{
		UserID: c.QueryParam("userId"),
		BookID: c.QueryParam("bookId"),
		State:  model.ReservationState(strings.ToUpper(c.QueryParam("state"))),
	}
	items, err := h.svc.ListReservations(c.Request().Context(), a, filter)
	if err != nil {
		return h.httpError(c, err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) GetReservation(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	rsv, err := h.svc.GetReservation(c.Request().Context(), a, id)
	if err != nil {
		return h.httpError(c, err)
	}
	return c.JSON(http.StatusOK, rsv)
}

func (h *Handler) CancelReservation(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	rsv, err := h.svc.CancelReservation(c.Request().Context(), a, id)
	if err != nil {
		return h.httpError(c, err)
	}
	return c.JSON(http.StatusOK, rsv)
}

// ProcessReservation
// @Summary Turn a pending reservation into a loan
// @Tags reservations
// @Produce json
// @Param id path string true "reservation id"
// @Success 201 {object} model.Loan
// @Failure 409 {object} errs.ErrorResponse
// @Router /reservations/{id}/process [post]
func (h *Handler) ProcessReservation(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	loan, err := h.svc.ProcessReservation(c.Request().Context(), a, id)
	if err != nil {
		return h.httpError(c, err)
	}
	return c.JSON(http.StatusCreated, loan)
}

type expireResponse struct {
	Expired int `json:"expired"`
}

func (h *Handler) ExpireReservations(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	n, err := h.svc.ExpirePastDueAs(c.Request().Context(), a)
	if err != nil {
		return h.httpError(c, err)
	}
	return c.JSON(http.StatusOK, expireResponse{Expired: n})
}

// Audit
// @Summary Books whose available counter disagrees with their active loans
// @Tags audit
// @Produce json
// @Success 200 {array} model.InventoryDrift
// @Router /audit [get]
func (h *Handler) Audit(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	drift, err := h.svc.AuditAs(c.Request().Context(), a)
	if err != nil {
		return h.httpError(c, err)
	}
	return c.JSON(http.StatusOK, drift)
}
