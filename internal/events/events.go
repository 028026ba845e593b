package events

import (
	"context"
	"sync"
	"time"

	"price-comparator-api/internal/models"
)

// EventType represents the type of event.
type EventType string

const (
	// EventPricesIngested is emitted after a CSV data load completes.
	EventPricesIngested EventType = "prices.ingested"
	// EventBasketOptimized is emitted when a basket has been optimized.
	EventBasketOptimized EventType = "basket.optimized"
	// EventAlertsTriggered is emitted when an alert check trips alerts.
	EventAlertsTriggered EventType = "alerts.triggered"
)

// Event represents an event in the system.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Data      interface{}
}

// PricesIngestedData contains data for ingestion events.
type PricesIngestedData struct {
	Files     int
	Prices    int
	Discounts int
	Failures  int
}

// BasketOptimizedData contains data for basket optimization events.
type BasketOptimizedData struct {
	ProductIDs []string
	Date       models.Date
	Baskets    []models.StoreBasket
}

// AlertsTriggeredData contains data for triggered-alert events.
type AlertsTriggeredData struct {
	Alerts    []models.Alert
	CheckedAt time.Time
}

// Handler is a function that handles events.
type Handler func(ctx context.Context, event Event) error

// Manager manages event handlers and event publishing.
type Manager struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	enabled  bool
}

// NewManager creates a new event manager.
func NewManager(enabled bool) *Manager {
	return &Manager{
		handlers: make(map[EventType][]Handler),
		enabled:  enabled,
	}
}

// Subscribe subscribes a handler to a specific event type.
func (m *Manager) Subscribe(eventType EventType, handler Handler) {
	if !m.enabled {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.handlers[eventType] = append(m.handlers[eventType], handler)
}

// Publish publishes an event to all subscribed handlers. Handlers run
// asynchronously so publishing never blocks a request.
func (m *Manager) Publish(ctx context.Context, eventType EventType, data interface{}) {
	if !m.enabled {
		return
	}

	m.mu.RLock()
	handlers := m.handlers[eventType]
	m.mu.RUnlock()

	if len(handlers) == 0 {
		return
	}

	event := Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}

	for _, handler := range handlers {
		go func(h Handler) {
			_ = h(ctx, event)
		}(handler)
	}
}

// PublishPricesIngested publishes an ingestion-completed event.
func (m *Manager) PublishPricesIngested(ctx context.Context, files, prices, discounts, failures int) {
	m.Publish(ctx, EventPricesIngested, PricesIngestedData{
		Files:     files,
		Prices:    prices,
		Discounts: discounts,
		Failures:  failures,
	})
}

// PublishBasketOptimized publishes a basket optimization event.
func (m *Manager) PublishBasketOptimized(ctx context.Context, productIDs []string, date models.Date, baskets []models.StoreBasket) {
	m.Publish(ctx, EventBasketOptimized, BasketOptimizedData{
		ProductIDs: productIDs,
		Date:       date,
		Baskets:    baskets,
	})
}

// PublishAlertsTriggered publishes a triggered-alert event.
func (m *Manager) PublishAlertsTriggered(ctx context.Context, alerts []models.Alert) {
	m.Publish(ctx, EventAlertsTriggered, AlertsTriggeredData{
		Alerts:    alerts,
		CheckedAt: time.Now(),
	})
}

// Shutdown shuts down the event manager.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.enabled = false
	m.handlers = make(map[EventType][]Handler)
}
