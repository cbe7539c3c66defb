package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"shareit/internal/config"
	"shareit/internal/domain"
	"shareit/internal/export"
	"shareit/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// Handler serves the booking endpoints. The acting user comes from the
// configured user header.
type Handler struct {
	bookings   domain.BookingService
	pinger     Pinger
	cfg        config.APIConfig
	bookingCfg config.BookingConfig
	limiter    *rateLimiter
	log        zerolog.Logger
}

func NewHandler(bookings domain.BookingService, pinger Pinger, cfg config.APIConfig, bookingCfg config.BookingConfig, logger *zerolog.Logger) *Handler {
	if cfg.UserHeader == "" {
		cfg.UserHeader = config.DefaultUserHeader
	}
	if bookingCfg.DefaultPageSize <= 0 {
		bookingCfg.DefaultPageSize = models.DefaultPageSize
	}
	if bookingCfg.MaxPageSize <= 0 {
		bookingCfg.MaxPageSize = models.MaxPageSize
	}
	h := &Handler{
		bookings:   bookings,
		pinger:     pinger,
		cfg:        cfg,
		bookingCfg: bookingCfg,
		limiter:    newRateLimiter(cfg.RateLimit),
		log:        zerolog.Nop(),
	}
	if logger != nil {
		h.log = logger.With().Str("component", "http").Logger()
	}
	return h
}

// Routes builds the chi router with the middleware stack.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(requestID)
	r.Use(loggingMiddleware(h.log))
	r.Use(middleware.Recoverer)
	r.Use(metricsMiddleware)

	r.Get("/healthz", h.health)

	r.Group(func(r chi.Router) {
		r.Use(rateLimitMiddleware(h.limiter, h.cfg.UserHeader))

		r.Route("/bookings", func(r chi.Router) {
			r.Post("/", h.createBooking)
			r.Get("/", h.listByUser)
			r.Get("/owner", h.listByOwner)
			r.Get("/owner/export", h.exportByOwner)
			r.Get("/{bookingID}", h.getBooking)
			r.Patch("/{bookingID}", h.decideBooking)
		})
		r.Get("/items/{itemID}", h.itemOverview)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

func (h *Handler) createBooking(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.actingUser(w, r)
	if !ok {
		return
	}

	var req createBookingRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON body: %v", err))
		return
	}

	booking, err := h.bookings.CreateBooking(r.Context(), userID, req.ItemID, req.Start.Time, req.End.Time)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBookingDTO(booking))
}

func (h *Handler) decideBooking(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.actingUser(w, r)
	if !ok {
		return
	}
	bookingID, ok := pathID(w, r, "bookingID")
	if !ok {
		return
	}
	approved, err := strconv.ParseBool(r.URL.Query().Get("approved"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "approved must be true or false")
		return
	}

	booking, err := h.bookings.DecideBooking(r.Context(), bookingID, userID, approved)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingDTO(booking))
}

func (h *Handler) getBooking(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.actingUser(w, r)
	if !ok {
		return
	}
	bookingID, ok := pathID(w, r, "bookingID")
	if !ok {
		return
	}

	booking, err := h.bookings.GetBooking(r.Context(), bookingID, userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingDTO(booking))
}

func (h *Handler) listByUser(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.bookings.ListByUser)
}

func (h *Handler) listByOwner(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.bookings.ListByOwner)
}

type listFunc func(ctx context.Context, id int64, state models.BookingState, page models.Page) ([]*models.Booking, error)

func (h *Handler) list(w http.ResponseWriter, r *http.Request, fn listFunc) {
	userID, ok := h.actingUser(w, r)
	if !ok {
		return
	}
	state, err := parseState(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	page, err := h.parsePage(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	bookings, err := fn(r.Context(), userID, state, page)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingDTOs(bookings))
}

func (h *Handler) exportByOwner(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.actingUser(w, r)
	if !ok {
		return
	}
	state, err := parseState(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	bookings, err := h.bookings.ExportByOwner(r.Context(), userID, state)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="bookings.xlsx"`)
	if err := export.WriteBookingsXLSX(w, bookings); err != nil {
		h.log.Error().Err(err).Str("request_id", requestIDFrom(r.Context())).Msg("write export")
	}
}

func (h *Handler) itemOverview(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.actingUser(w, r)
	if !ok {
		return
	}
	itemID, ok := pathID(w, r, "itemID")
	if !ok {
		return
	}

	overview, err := h.bookings.ItemOverview(r.Context(), itemID, userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toItemOverviewDTO(overview))
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if h.pinger != nil {
		if err := h.pinger.Ping(r.Context()); err != nil {
			h.log.Warn().Err(err).Msg("health check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// actingUser reads the user id header. It writes a 400 and returns false when
// the header is missing or malformed.
func (h *Handler) actingUser(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := strings.TrimSpace(r.Header.Get(h.cfg.UserHeader))
	if raw == "" {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("missing %s header", h.cfg.UserHeader))
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid %s header", h.cfg.UserHeader))
		return 0, false
	}
	return id, true
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid %s", name))
		return 0, false
	}
	return id, true
}

func parseState(r *http.Request) (models.BookingState, error) {
	state, err := models.ParseBookingState(r.URL.Query().Get("state"))
	if err != nil {
		return "", domain.InvalidInput("%s", err.Error())
	}
	return state, nil
}

// parsePage turns from/size into a page. size is capped before the page
// index is computed so offsets stay aligned to the capped size.
func (h *Handler) parsePage(r *http.Request) (models.Page, error) {
	q := r.URL.Query()
	from, err := intParam(q.Get("from"), 0)
	if err != nil {
		return models.Page{}, domain.InvalidInput("from must be an integer")
	}
	size, err := intParam(q.Get("size"), h.bookingCfg.DefaultPageSize)
	if err != nil {
		return models.Page{}, domain.InvalidInput("size must be an integer")
	}
	if from < 0 {
		return models.Page{}, domain.InvalidInput("from must not be negative")
	}
	if size <= 0 {
		return models.Page{}, domain.InvalidInput("size must be positive")
	}
	if size > h.bookingCfg.MaxPageSize {
		size = h.bookingCfg.MaxPageSize
	}
	return models.PageFromOffset(from, size), nil
}

func intParam(raw string, def int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := writeServiceError(w, err)
	if code == http.StatusInternalServerError {
		h.log.Error().Err(err).Str("request_id", requestIDFrom(r.Context())).Str("path", r.URL.Path).Msg("request failed")
	}
}
