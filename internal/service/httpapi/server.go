// Package httpapi - управляющий HTTP API доски заказов. Чтение идёт прямо
// из реестра, все изменения выполняются в потоке EventLoop.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ordertracker/internal/domain"
	"github.com/vladislavdragonenkov/ordertracker/internal/ingest"
)

// OrderStore - операции реестра, доступные API.
type OrderStore interface {
	Orders() []domain.Order
	Order(id int) (domain.Order, bool)
	Apply(id int, t domain.Transition) (domain.Order, error)
	AdjustTip(id int, amount float64) (domain.Order, error)
	ClearAllOrders()
}

// Executor выполняет функцию в потоке потребителя.
type Executor interface {
	Call(ctx context.Context, fn func() error) error
}

// HistoryProvider отдаёт timeline заказа.
type HistoryProvider interface {
	History(orderID int) ([]domain.TimelineEvent, error)
}

// FailureSource отдаёт файлы, которые не удалось импортировать.
type FailureSource interface {
	Failures() []ingest.ParseFailure
}

// Options задаёт параметры Server.
type Options struct {
	Logger   *log.Entry
	History  HistoryProvider
	Failures FailureSource
}

// Option настраивает Server.
type Option func(*Options)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithHistory подключает timeline.
func WithHistory(history HistoryProvider) Option {
	return func(opts *Options) {
		opts.History = history
	}
}

// WithFailures подключает список ошибок импорта.
func WithFailures(failures FailureSource) Option {
	return func(opts *Options) {
		opts.Failures = failures
	}
}

// Server обслуживает HTTP API.
type Server struct {
	store    OrderStore
	executor Executor
	history  HistoryProvider
	failures FailureSource
	logger   *log.Entry
	echo     *echo.Echo
}

// NewServer создаёт API и регистрирует маршруты.
func NewServer(store OrderStore, executor Executor, options ...Option) *Server {
	opts := Options{}
	for _, option := range options {
		option(&opts)
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "http-api")
	}

	s := &Server{
		store:    store,
		executor: executor,
		history:  opts.History,
		failures: opts.Failures,
		logger:   logger,
		echo:     echo.New(),
	}
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Use(middleware.Recover())
	s.echo.Use(s.requestLogger)
	s.routes()
	return s
}

// Handler возвращает http.Handler для http.Server.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) routes() {
	s.echo.GET("/orders", s.ListOrders)
	s.echo.DELETE("/orders", s.ClearOrders)
	s.echo.GET("/orders/:id", s.GetOrder)
	s.echo.GET("/orders/:id/timeline", s.GetTimeline)
	s.echo.POST("/orders/:id/:action", s.ApplyTransition)
	s.echo.PUT("/orders/:id/tip", s.AdjustTip)
	s.echo.GET("/failures", s.ListFailures)
}

func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}
		s.logger.WithFields(log.Fields{
			"method":   c.Request().Method,
			"path":     c.Path(),
			"status":   c.Response().Status,
			"duration": time.Since(start),
		}).Debug("http request served")
		return nil
	}
}

// ListOrders handles GET /orders. Фильтры status и type необязательны.
func (s *Server) ListOrders(c echo.Context) error {
	statusFilter := strings.ToUpper(strings.TrimSpace(c.QueryParam("status")))
	typeFilter := strings.ToUpper(strings.TrimSpace(c.QueryParam("type")))

	if statusFilter != "" && !domain.OrderStatus(statusFilter).Valid() {
		return respondError(c, http.StatusBadRequest, "unknown status filter: "+statusFilter)
	}
	if typeFilter != "" {
		if _, err := domain.ParseOrderType(typeFilter); err != nil {
			return respondError(c, http.StatusBadRequest, err.Error())
		}
	}

	orders := s.store.Orders()
	response := make([]orderTile, 0, len(orders))
	for _, order := range orders {
		if statusFilter != "" && string(order.Status) != statusFilter {
			continue
		}
		if typeFilter != "" && string(order.Type) != typeFilter {
			continue
		}
		response = append(response, newOrderTile(order))
	}
	return c.JSON(http.StatusOK, response)
}

// GetOrder handles GET /orders/:id.
func (s *Server) GetOrder(c echo.Context) error {
	id, err := orderID(c)
	if err != nil {
		return respondError(c, http.StatusBadRequest, err.Error())
	}
	order, ok := s.store.Order(id)
	if !ok {
		return respondError(c, http.StatusNotFound, "order not found")
	}
	return c.JSON(http.StatusOK, newOrderDetails(order))
}

// GetTimeline handles GET /orders/:id/timeline.
func (s *Server) GetTimeline(c echo.Context) error {
	id, err := orderID(c)
	if err != nil {
		return respondError(c, http.StatusBadRequest, err.Error())
	}
	if s.history == nil {
		return respondError(c, http.StatusNotImplemented, "timeline is not configured")
	}
	if _, ok := s.store.Order(id); !ok {
		return respondError(c, http.StatusNotFound, "order not found")
	}

	events, err := s.history.History(id)
	if err != nil {
		s.logger.WithError(err).WithField("order_id", id).Error("failed to read timeline")
		return respondError(c, http.StatusInternalServerError, "failed to read timeline")
	}
	response := make([]timelineEntry, 0, len(events))
	for _, event := range events {
		response = append(response, newTimelineEntry(event))
	}
	return c.JSON(http.StatusOK, response)
}

// ApplyTransition handles POST /orders/:id/{start|complete|cancel|uncancel}.
func (s *Server) ApplyTransition(c echo.Context) error {
	id, err := orderID(c)
	if err != nil {
		return respondError(c, http.StatusBadRequest, err.Error())
	}
	transition := domain.Transition(c.Param("action"))
	switch transition {
	case domain.TransitionStart, domain.TransitionComplete, domain.TransitionCancel, domain.TransitionUncancel:
	default:
		return respondError(c, http.StatusNotFound, "unknown action: "+string(transition))
	}

	var updated domain.Order
	err = s.executor.Call(c.Request().Context(), func() error {
		order, applyErr := s.store.Apply(id, transition)
		updated = order
		return applyErr
	})
	if err != nil {
		return s.mutationError(c, err)
	}
	return c.JSON(http.StatusOK, newOrderDetails(updated))
}

type tipRequest struct {
	Amount *float64 `json:"amount"`
}

// AdjustTip handles PUT /orders/:id/tip.
func (s *Server) AdjustTip(c echo.Context) error {
	id, err := orderID(c)
	if err != nil {
		return respondError(c, http.StatusBadRequest, err.Error())
	}
	var req tipRequest
	if err := c.Bind(&req); err != nil || req.Amount == nil {
		return respondError(c, http.StatusBadRequest, "request body must contain amount")
	}

	var updated domain.Order
	err = s.executor.Call(c.Request().Context(), func() error {
		order, tipErr := s.store.AdjustTip(id, *req.Amount)
		updated = order
		return tipErr
	})
	if err != nil {
		return s.mutationError(c, err)
	}
	return c.JSON(http.StatusOK, newOrderDetails(updated))
}

// ClearOrders handles DELETE /orders.
func (s *Server) ClearOrders(c echo.Context) error {
	err := s.executor.Call(c.Request().Context(), func() error {
		s.store.ClearAllOrders()
		return nil
	})
	if err != nil {
		return s.mutationError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ListFailures handles GET /failures.
func (s *Server) ListFailures(c echo.Context) error {
	if s.failures == nil {
		return c.JSON(http.StatusOK, []failureEntry{})
	}
	failures := s.failures.Failures()
	response := make([]failureEntry, 0, len(failures))
	for _, failure := range failures {
		response = append(response, newFailureEntry(failure))
	}
	return c.JSON(http.StatusOK, response)
}

func (s *Server) mutationError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrOrderNotFound):
		return respondError(c, http.StatusNotFound, err.Error())
	case domain.IsInvalidTransition(err), errors.Is(err, domain.ErrTipNotAdjustable):
		return respondError(c, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrInvalidTip):
		return respondError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrLoopStopped):
		return respondError(c, http.StatusServiceUnavailable, "tracker is shutting down")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return respondError(c, http.StatusServiceUnavailable, "request cancelled")
	}
	s.logger.WithError(err).Error("order mutation failed")
	return respondError(c, http.StatusInternalServerError, "internal error")
}

func orderID(c echo.Context) (int, error) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return 0, errors.New("order id must be a positive integer")
	}
	return id, nil
}

func respondError(c echo.Context, code int, message string) error {
	return c.JSON(code, errorResponse{Code: code, Message: message})
}
