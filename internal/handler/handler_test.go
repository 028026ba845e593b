package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"price-comparator-api/internal/alerts"
	"price-comparator-api/internal/database"
	"price-comparator-api/internal/features"
	"price-comparator-api/internal/ingest"
	"price-comparator-api/internal/models"
	"price-comparator-api/internal/service"
	"price-comparator-api/internal/units"
)

func setupTestServer(t *testing.T) (*database.DB, *features.Manager, http.Handler, func()) {
	dbPath := "./test_" + time.Now().Format("20060102150405.000000000") + ".db"
	db, err := database.NewDB(dbPath)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	svc := service.NewService(db, zerolog.Nop())
	registry := alerts.NewRegistry(svc, svc)
	loader := ingest.NewLoader(db, zerolog.Nop())
	flags := features.NewManager()

	h := NewHandler(svc, registry, loader, flags, DefaultOptions())
	r := chi.NewRouter()
	h.Routes(r)

	cleanup := func() {
		db.Close()
		os.Remove(dbPath)
	}

	return db, flags, r, cleanup
}

func seedMilk(t *testing.T, db *database.DB) {
	t.Helper()
	if err := db.UpsertStore(models.Store{ID: "lidl", Name: "Lidl"}); err != nil {
		t.Fatalf("Failed to upsert store: %v", err)
	}
	if err := db.UpsertStore(models.Store{ID: "kaufland", Name: "Kaufland"}); err != nil {
		t.Fatalf("Failed to upsert store: %v", err)
	}
	if err := db.UpsertProduct(models.Product{
		ID:              "P001",
		Name:            "Milk",
		Category:        "dairy",
		Brand:           "Zuzu",
		PackageQuantity: decimal.NewFromInt(1),
		PackageUnit:     units.Liters,
	}); err != nil {
		t.Fatalf("Failed to upsert product: %v", err)
	}
	_, err := db.InsertPrices([]models.PriceObservation{
		{ProductID: "P001", StoreID: "lidl", Price: decimal.RequireFromString("9.00"), EntryDate: models.NewDate(2025, time.May, 1)},
		{ProductID: "P001", StoreID: "kaufland", Price: decimal.RequireFromString("10.00"), EntryDate: models.NewDate(2025, time.May, 1)},
	})
	if err != nil {
		t.Fatalf("Failed to insert prices: %v", err)
	}
	_, err = db.InsertDiscounts([]models.Discount{{
		ProductID:  "P001",
		StoreID:    "lidl",
		Percentage: decimal.NewFromInt(20),
		FromDate:   models.NewDate(2025, time.May, 1),
		ToDate:     models.NewDate(2025, time.May, 10),
		EntryDate:  models.NewDate(2025, time.May, 1),
	}})
	if err != nil {
		t.Fatalf("Failed to insert discounts: %v", err)
	}
}

func doRequest(t *testing.T, r http.Handler, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestListProducts(t *testing.T) {
	db, _, r, cleanup := setupTestServer(t)
	defer cleanup()
	seedMilk(t, db)

	w := doRequest(t, r, http.MethodGet, "/products", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var products []models.Product
	if err := json.NewDecoder(w.Body).Decode(&products); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(products) != 1 || products[0].ID != "P001" {
		t.Errorf("products = %+v, want only P001", products)
	}
}

func TestListProducts_EmptyCatalog(t *testing.T) {
	_, _, r, cleanup := setupTestServer(t)
	defer cleanup()

	w := doRequest(t, r, http.MethodGet, "/products", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if body := w.Body.String(); body != "[]\n" {
		t.Errorf("body = %q, want an empty JSON array", body)
	}
}

func TestGetProduct_NotFound(t *testing.T) {
	_, _, r, cleanup := setupTestServer(t)
	defer cleanup()

	w := doRequest(t, r, http.MethodGet, "/products/missing", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestOptimizeBasket(t *testing.T) {
	db, _, r, cleanup := setupTestServer(t)
	defer cleanup()
	seedMilk(t, db)

	body, _ := json.Marshal(models.OptimizeBasketRequest{
		ProductIDs: []string{"P001"},
		Date:       "2025-05-05",
	})

	w := doRequest(t, r, http.MethodPost, "/basket/optimize", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	var baskets []models.StoreBasket
	if err := json.NewDecoder(w.Body).Decode(&baskets); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(baskets) != 1 || baskets[0].StoreID != "lidl" {
		t.Fatalf("baskets = %+v, want one lidl basket", baskets)
	}
	if !baskets[0].Total.Equal(decimal.RequireFromString("7.20")) {
		t.Errorf("total = %s, want 7.20", baskets[0].Total)
	}
}

func TestOptimizeBasket_BadRequests(t *testing.T) {
	_, _, r, cleanup := setupTestServer(t)
	defer cleanup()

	tests := []struct {
		name string
		body []byte
	}{
		{"no body", []byte{}},
		{"invalid json", []byte(`{`)},
		{"empty id list", []byte(`{"product_ids": []}`)},
		{"blank id", []byte(`{"product_ids": ["  "]}`)},
		{"bad date", []byte(`{"product_ids": ["P001"], "date": "05/01/2025"}`)},
	}

	for _, tt := range tests {
		w := doRequest(t, r, http.MethodPost, "/basket/optimize", tt.body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", tt.name, w.Code)
		}
	}
}

func TestOptimizeBasket_UnknownProduct(t *testing.T) {
	db, _, r, cleanup := setupTestServer(t)
	defer cleanup()
	seedMilk(t, db)

	body := []byte(`{"product_ids": ["nope"], "date": "2025-05-05"}`)
	w := doRequest(t, r, http.MethodPost, "/basket/optimize", body)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestGetPriceHistory(t *testing.T) {
	db, _, r, cleanup := setupTestServer(t)
	defer cleanup()
	seedMilk(t, db)

	w := doRequest(t, r, http.MethodGet, "/price-history?product=Milk&store=Lidl&end=2025-05-10", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	var timelines []models.ProductTimeline
	if err := json.NewDecoder(w.Body).Decode(&timelines); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(timelines) != 1 || len(timelines[0].Stores) != 1 {
		t.Fatalf("timelines = %+v, want one store timeline", timelines)
	}
	if len(timelines[0].Stores[0].Segments) == 0 {
		t.Error("expected at least one price segment")
	}
}

func TestGetPriceHistory_MissingProduct(t *testing.T) {
	_, _, r, cleanup := setupTestServer(t)
	defer cleanup()

	w := doRequest(t, r, http.MethodGet, "/price-history", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestGetCheaperAlternatives_UnknownProduct(t *testing.T) {
	db, _, r, cleanup := setupTestServer(t)
	defer cleanup()
	seedMilk(t, db)

	w := doRequest(t, r, http.MethodGet, "/products/missing/alternatives?date=2025-05-05", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestGetCheaperAlternatives_BadUnit(t *testing.T) {
	db, _, r, cleanup := setupTestServer(t)
	defer cleanup()
	seedMilk(t, db)

	w := doRequest(t, r, http.MethodGet, "/products/P001/alternatives?unit=oz", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestListActiveDiscounts(t *testing.T) {
	db, _, r, cleanup := setupTestServer(t)
	defer cleanup()
	seedMilk(t, db)

	w := doRequest(t, r, http.MethodGet, "/discounts/active?date=2025-05-05", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var discounts []models.Discount
	if err := json.NewDecoder(w.Body).Decode(&discounts); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(discounts) != 1 {
		t.Errorf("got %d active discounts, want 1", len(discounts))
	}

	w = doRequest(t, r, http.MethodGet, "/discounts/active?date=2025-06-01", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if body := w.Body.String(); body != "[]\n" {
		t.Errorf("body = %q, want an empty JSON array", body)
	}
}

func TestAlertLifecycle(t *testing.T) {
	db, _, r, cleanup := setupTestServer(t)
	defer cleanup()
	seedMilk(t, db)

	body := []byte(`{"product_id": "P001", "store_id": "lidl", "target_price": "20.00"}`)
	w := doRequest(t, r, http.MethodPost, "/alerts", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", w.Code, w.Body.String())
	}

	var alert models.Alert
	if err := json.NewDecoder(w.Body).Decode(&alert); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if alert.ID == "" || !alert.Active {
		t.Fatalf("unexpected alert: %+v", alert)
	}

	// Current price 9.00 is below the 20.00 target, so the check triggers.
	w = doRequest(t, r, http.MethodPost, "/alerts/check", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var triggered []models.Alert
	if err := json.NewDecoder(w.Body).Decode(&triggered); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(triggered) != 1 || triggered[0].ID != alert.ID {
		t.Fatalf("triggered = %+v, want the created alert", triggered)
	}

	w = doRequest(t, r, http.MethodGet, "/alerts", nil)
	if body := w.Body.String(); body != "[]\n" {
		t.Errorf("active alerts after trigger = %q, want an empty JSON array", body)
	}
}

func TestCreateAlert_BadRequests(t *testing.T) {
	db, _, r, cleanup := setupTestServer(t)
	defer cleanup()
	seedMilk(t, db)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"missing product id", `{"store_id": "lidl", "target_price": "5.00"}`, http.StatusBadRequest},
		{"non-positive target", `{"product_id": "P001", "store_id": "lidl", "target_price": "0"}`, http.StatusBadRequest},
		{"unknown product", `{"product_id": "nope", "store_id": "lidl", "target_price": "5.00"}`, http.StatusNotFound},
		{"unknown store", `{"product_id": "P001", "store_id": "nope", "target_price": "5.00"}`, http.StatusNotFound},
	}

	for _, tt := range tests {
		w := doRequest(t, r, http.MethodPost, "/alerts", []byte(tt.body))
		if w.Code != tt.want {
			t.Errorf("%s: status = %d, want %d", tt.name, w.Code, tt.want)
		}
	}
}

func TestDeactivateAlert(t *testing.T) {
	db, _, r, cleanup := setupTestServer(t)
	defer cleanup()
	seedMilk(t, db)

	body := []byte(`{"product_id": "P001", "store_id": "lidl", "target_price": "1.00"}`)
	w := doRequest(t, r, http.MethodPost, "/alerts", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", w.Code)
	}
	var alert models.Alert
	if err := json.NewDecoder(w.Body).Decode(&alert); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	w = doRequest(t, r, http.MethodDelete, "/alerts/"+alert.ID, nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", w.Code)
	}

	// Unknown ids are a no-op, not an error.
	w = doRequest(t, r, http.MethodDelete, "/alerts/no-such-alert", nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", w.Code)
	}
}

func TestFeatureFlagsDisableEndpoints(t *testing.T) {
	_, flags, r, cleanup := setupTestServer(t)
	defer cleanup()

	flags.Register(features.FlagAlerts, false, "")
	flags.Register(features.FlagRecommendations, false, "")
	flags.Register(features.FlagIngest, false, "")

	checks := []struct {
		method, path string
	}{
		{http.MethodPost, "/alerts"},
		{http.MethodPost, "/alerts/check"},
		{http.MethodGet, "/products/P001/alternatives"},
		{http.MethodPost, "/ingest"},
	}
	for _, c := range checks {
		w := doRequest(t, r, c.method, c.path, nil)
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("%s %s: status = %d, want 503", c.method, c.path, w.Code)
		}
	}
}

func TestIngest_NoDirectory(t *testing.T) {
	_, _, r, cleanup := setupTestServer(t)
	defer cleanup()

	w := doRequest(t, r, http.MethodPost, "/ingest", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}
