package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"price-comparator-api/internal/alerts"
	"price-comparator-api/internal/events"
	"price-comparator-api/internal/features"
	"price-comparator-api/internal/ingest"
	"price-comparator-api/internal/models"
	"price-comparator-api/internal/service"
	"price-comparator-api/internal/units"
	"price-comparator-api/internal/validation"
)

// Handler provides HTTP handlers for the API.
type Handler struct {
	service     *service.Service
	alerts      *alerts.Registry
	loader      *ingest.Loader
	flags       *features.Manager
	events      *events.Manager
	dataDir     string
	maxBodySize int64
}

// Options holds options for creating a handler.
type Options struct {
	DataDir     string
	MaxBodySize int64
}

// DefaultOptions returns default handler options.
func DefaultOptions() Options {
	return Options{
		MaxBodySize: 10 << 20, // 10MB default
	}
}

// NewHandler creates a new handler instance.
func NewHandler(svc *service.Service, registry *alerts.Registry, loader *ingest.Loader, flags *features.Manager, opts Options) *Handler {
	if opts.MaxBodySize == 0 {
		opts.MaxBodySize = DefaultOptions().MaxBodySize
	}
	return &Handler{
		service:     svc,
		alerts:      registry,
		loader:      loader,
		flags:       flags,
		dataDir:     opts.DataDir,
		maxBodySize: opts.MaxBodySize,
	}
}

// UseEvents enables event publishing for alert checks.
func (h *Handler) UseEvents(m *events.Manager) {
	h.events = m
}

// Routes mounts every endpoint on the router.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.ListProducts)
		r.Get("/category/{category}", h.ListProductsByCategory)
		r.Get("/{id}", h.GetProduct)
		r.Get("/{id}/alternatives", h.GetCheaperAlternatives)
	})

	r.Route("/discounts", func(r chi.Router) {
		r.Get("/", h.ListDiscounts)
		r.Get("/active", h.ListActiveDiscounts)
		r.Get("/best", h.ListBestDiscounts)
		r.Get("/new", h.ListNewDiscounts)
	})

	r.Post("/basket/optimize", h.OptimizeBasket)
	r.Get("/price-history", h.GetPriceHistory)

	r.Route("/alerts", func(r chi.Router) {
		r.Post("/", h.CreateAlert)
		r.Get("/", h.ListActiveAlerts)
		r.Delete("/{id}", h.DeactivateAlert)
		r.Post("/check", h.CheckAlerts)
		r.Post("/check/{product_id}", h.CheckAlertsForProduct)
	})

	r.Post("/ingest", h.Ingest)
}

// ListProducts handles GET /products
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.Products(r.Context())
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	if products == nil {
		products = []models.Product{}
	}
	h.respondJSON(w, http.StatusOK, products)
}

// GetProduct handles GET /products/{id}
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id := validation.SanitizeString(chi.URLParam(r, "id"))

	product, err := h.service.ProductByID(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, product)
}

// ListProductsByCategory handles GET /products/category/{category}
func (h *Handler) ListProductsByCategory(w http.ResponseWriter, r *http.Request) {
	category := validation.SanitizeString(chi.URLParam(r, "category"))

	products, err := h.service.ProductsByCategory(r.Context(), category)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	if products == nil {
		products = []models.Product{}
	}
	h.respondJSON(w, http.StatusOK, products)
}

// GetCheaperAlternatives handles GET /products/{id}/alternatives
func (h *Handler) GetCheaperAlternatives(w http.ResponseWriter, r *http.Request) {
	if !h.flags.IsEnabled(features.FlagRecommendations) {
		h.respondError(w, http.StatusServiceUnavailable, "recommendations are disabled")
		return
	}

	id := validation.SanitizeString(chi.URLParam(r, "id"))

	date, err := validation.ParseDateParam("date", r.URL.Query().Get("date"))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	unit, err := validation.ParseUnitParam("unit", r.URL.Query().Get("unit"))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	recommendations, err := h.service.GetCheaperAlternatives(r.Context(), id, date, unit)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, recommendations)
}

// ListDiscounts handles GET /discounts
func (h *Handler) ListDiscounts(w http.ResponseWriter, r *http.Request) {
	discounts, err := h.service.Discounts(r.Context())
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	if discounts == nil {
		discounts = []models.Discount{}
	}
	h.respondJSON(w, http.StatusOK, discounts)
}

// ListActiveDiscounts handles GET /discounts/active
func (h *Handler) ListActiveDiscounts(w http.ResponseWriter, r *http.Request) {
	h.listDiscountsOn(w, r, h.service.ActiveDiscounts)
}

// ListBestDiscounts handles GET /discounts/best
func (h *Handler) ListBestDiscounts(w http.ResponseWriter, r *http.Request) {
	h.listDiscountsOn(w, r, h.service.BestDiscounts)
}

// ListNewDiscounts handles GET /discounts/new
func (h *Handler) ListNewDiscounts(w http.ResponseWriter, r *http.Request) {
	h.listDiscountsOn(w, r, h.service.NewDiscounts)
}

func (h *Handler) listDiscountsOn(
	w http.ResponseWriter,
	r *http.Request,
	list func(ctx context.Context, date models.Date) ([]models.Discount, error),
) {
	date, err := validation.ParseDateParam("date", r.URL.Query().Get("date"))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	discounts, err := list(r.Context(), date)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	if discounts == nil {
		discounts = []models.Discount{}
	}
	h.respondJSON(w, http.StatusOK, discounts)
}

// OptimizeBasket handles POST /basket/optimize
func (h *Handler) OptimizeBasket(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)

	var req models.OptimizeBasketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err == io.EOF {
			h.respondError(w, http.StatusBadRequest, "request body is required")
			return
		}
		h.respondError(w, http.StatusBadRequest, "invalid JSON in request body")
		return
	}

	if err := validation.ValidateBasketRequest(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	date, err := validation.ParseDateParam("date", req.Date)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	baskets, err := h.service.OptimizeBasket(r.Context(), req.ProductIDs, date)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, baskets)
}

// GetPriceHistory handles GET /price-history
func (h *Handler) GetPriceHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := models.PriceHistoryFilter{
		ProductName: validation.SanitizeString(q.Get("product")),
		StoreName:   validation.SanitizeString(q.Get("store")),
		Category:    validation.SanitizeString(q.Get("category")),
		Brand:       validation.SanitizeString(q.Get("brand")),
	}

	if raw := validation.SanitizeString(q.Get("start")); raw != "" {
		date, err := models.ParseDate(raw)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, "invalid 'start' parameter, must be YYYY-MM-DD")
			return
		}
		filter.StartDate = &date
	}
	if raw := validation.SanitizeString(q.Get("end")); raw != "" {
		date, err := models.ParseDate(raw)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, "invalid 'end' parameter, must be YYYY-MM-DD")
			return
		}
		filter.EndDate = &date
	}

	timelines, err := h.service.GetPriceHistory(r.Context(), filter)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	if timelines == nil {
		timelines = []models.ProductTimeline{}
	}
	h.respondJSON(w, http.StatusOK, timelines)
}

// CreateAlert handles POST /alerts
func (h *Handler) CreateAlert(w http.ResponseWriter, r *http.Request) {
	if !h.flags.IsEnabled(features.FlagAlerts) {
		h.respondError(w, http.StatusServiceUnavailable, "alerts are disabled")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)

	var req models.CreateAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err == io.EOF {
			h.respondError(w, http.StatusBadRequest, "request body is required")
			return
		}
		h.respondError(w, http.StatusBadRequest, "invalid JSON in request body")
		return
	}

	if err := validation.ValidateCreateAlert(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	alert, err := h.alerts.Create(req.ProductID, req.StoreID, req.TargetPrice)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, alert)
}

// ListActiveAlerts handles GET /alerts
func (h *Handler) ListActiveAlerts(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.alerts.ActiveAlerts())
}

// DeactivateAlert handles DELETE /alerts/{id}
func (h *Handler) DeactivateAlert(w http.ResponseWriter, r *http.Request) {
	h.alerts.Deactivate(validation.SanitizeString(chi.URLParam(r, "id")))
	w.WriteHeader(http.StatusNoContent)
}

// CheckAlerts handles POST /alerts/check
func (h *Handler) CheckAlerts(w http.ResponseWriter, r *http.Request) {
	if !h.flags.IsEnabled(features.FlagAlerts) {
		h.respondError(w, http.StatusServiceUnavailable, "alerts are disabled")
		return
	}

	triggered, err := h.alerts.CheckAll(models.Today())
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	if h.events != nil && len(triggered) > 0 {
		h.events.PublishAlertsTriggered(r.Context(), triggered)
	}
	h.respondJSON(w, http.StatusOK, triggered)
}

// CheckAlertsForProduct handles POST /alerts/check/{product_id}
func (h *Handler) CheckAlertsForProduct(w http.ResponseWriter, r *http.Request) {
	if !h.flags.IsEnabled(features.FlagAlerts) {
		h.respondError(w, http.StatusServiceUnavailable, "alerts are disabled")
		return
	}

	productID := validation.SanitizeString(chi.URLParam(r, "product_id"))
	triggered, err := h.alerts.CheckForProduct(productID, models.Today())
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	if h.events != nil && len(triggered) > 0 {
		h.events.PublishAlertsTriggered(r.Context(), triggered)
	}
	h.respondJSON(w, http.StatusOK, triggered)
}

// Ingest handles POST /ingest
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	if !h.flags.IsEnabled(features.FlagIngest) {
		h.respondError(w, http.StatusServiceUnavailable, "ingestion is disabled")
		return
	}

	dir := validation.SanitizeString(r.URL.Query().Get("dir"))
	if dir == "" {
		dir = h.dataDir
	}
	if dir == "" {
		h.respondError(w, http.StatusBadRequest, "no data directory configured or provided")
		return
	}

	report, err := h.loader.LoadDir(dir)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.respondJSON(w, http.StatusOK, report)
}

// respondServiceError maps engine errors onto HTTP status codes.
func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	var validationErr *validation.ValidationError
	switch {
	case errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, units.ErrUnsupportedConversion),
		errors.Is(err, units.ErrNonPositiveQuantity),
		errors.Is(err, alerts.ErrInvalidTarget),
		errors.As(err, &validationErr):
		h.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrNotFound), errors.Is(err, alerts.ErrNotFound):
		h.respondError(w, http.StatusNotFound, err.Error())
	default:
		h.respondError(w, http.StatusInternalServerError, "internal server error")
	}
}

// respondJSON sends a JSON response with the given status code.
func (h *Handler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response with the given status code and message.
func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, models.ErrorResponse{Error: message})
}
