// Package ordering реализует создание заказа с резервированием остатков:
// проверка клиента → проверка и оценка товаров → сохранение заказа → списание остатков.
package ordering

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vladislavdragonenkov/ordering/internal/domain"
	"github.com/vladislavdragonenkov/ordering/internal/metrics"
)

const (
	tracerName = "github.com/vladislavdragonenkov/ordering/internal/service/ordering"

	// EventTypeOrderCreated публикуется после успешного создания заказа и списания остатков.
	EventTypeOrderCreated = "OrderCreated"
	// EventTypeOrderStockUpdateFailed публикуется, если заказ сохранён, а остатки не списаны.
	EventTypeOrderStockUpdateFailed = "OrderStockUpdateFailed"
)

// Workflow создаёт заказы. Безопасен для конкурентного использования, если
// безопасны переданные зависимости.
type Workflow struct {
	customers domain.CustomerLookup
	catalog   domain.ProductCatalog
	orders    domain.OrderStore
	locker    domain.StockLocker
	outbox    domain.OutboxRepository
	logger    *log.Entry
	metrics   *metrics.OrderMetrics
	tracer    trace.Tracer
	now       func() time.Time
}

// Option настраивает Workflow.
type Option func(*Workflow)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(w *Workflow) {
		w.logger = logger
	}
}

// WithMetrics включает prometheus-метрики.
func WithMetrics(m *metrics.OrderMetrics) Option {
	return func(w *Workflow) {
		w.metrics = m
	}
}

// WithLocker включает сериализацию заказов по товарам на время от чтения
// остатков до их списания. Без locker конкурентные заказы на один товар
// могут пройти проверку по устаревшему остатку; списание тогда завершится
// ErrStockConflict.
func WithLocker(locker domain.StockLocker) Option {
	return func(w *Workflow) {
		w.locker = locker
	}
}

// WithOutbox включает запись событий о созданных заказах.
func WithOutbox(outbox domain.OutboxRepository) Option {
	return func(w *Workflow) {
		w.outbox = outbox
	}
}

// WithTracer задаёт OpenTelemetry tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(w *Workflow) {
		w.tracer = tracer
	}
}

// WithClock подменяет источник времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(w *Workflow) {
		w.now = now
	}
}

// NewWorkflow конструирует сценарий создания заказа.
func NewWorkflow(
	customers domain.CustomerLookup,
	catalog domain.ProductCatalog,
	orders domain.OrderStore,
	options ...Option,
) *Workflow {
	w := &Workflow{
		customers: customers,
		catalog:   catalog,
		orders:    orders,
	}
	for _, option := range options {
		option(w)
	}
	if w.logger == nil {
		w.logger = log.WithField("component", "ordering")
	}
	if w.tracer == nil {
		w.tracer = otel.Tracer(tracerName)
	}
	if w.now == nil {
		w.now = func() time.Time { return time.Now().UTC() }
	}
	return w
}

// Execute создаёт заказ клиента customerID на позиции lines.
//
// Бизнес-отказы (ErrCustomerNotFound, ErrNoProductsFound, ErrProductsPartiallyMissing,
// ErrInsufficientStock, ErrDuplicateProduct) возвращаются до любых изменений.
// Ошибки зависимостей возвращаются обёрнутыми через %w. Если заказ сохранён, но
// списание остатков не удалось, возвращается *domain.StockUpdateError с созданным заказом.
func (w *Workflow) Execute(ctx context.Context, customerID string, lines []domain.RequestedLine) (order domain.Order, err error) {
	start := time.Now()
	ctx, span := w.tracer.Start(ctx, "ordering.Execute", trace.WithAttributes(
		attribute.String("customer.id", customerID),
		attribute.Int("order.requested_lines", len(lines)),
	))
	if w.metrics != nil {
		w.metrics.RecordStarted()
	}
	defer func() {
		w.finish(span, customerID, order, err)
		if w.metrics != nil {
			w.metrics.RecordFinished(time.Since(start))
		}
		span.End()
	}()

	if customerID == "" {
		return domain.Order{}, domain.ErrCustomerRequired
	}
	if len(lines) == 0 {
		return domain.Order{}, domain.ErrItemsRequired
	}

	var customer domain.Customer
	if err := w.step(ctx, domain.OrderStepCustomer, func(ctx context.Context) error {
		var findErr error
		customer, findErr = w.customers.FindByID(ctx, customerID)
		if findErr != nil && !errors.Is(findErr, domain.ErrCustomerNotFound) {
			return fmt.Errorf("find customer %s: %w", customerID, findErr)
		}
		return findErr
	}); err != nil {
		return domain.Order{}, err
	}

	ids, err := distinctProductIDs(lines)
	if err != nil {
		return domain.Order{}, err
	}

	if w.locker != nil {
		unlock, err := w.locker.Lock(ctx, ids)
		if err != nil {
			return domain.Order{}, fmt.Errorf("lock products: %w", err)
		}
		defer unlock()
	}

	var products map[string]domain.Product
	if err := w.step(ctx, domain.OrderStepProducts, func(ctx context.Context) error {
		var loadErr error
		products, loadErr = w.loadProducts(ctx, ids)
		return loadErr
	}); err != nil {
		return domain.Order{}, err
	}

	if err := w.step(ctx, domain.OrderStepStock, func(context.Context) error {
		return checkStock(lines, products)
	}); err != nil {
		return domain.Order{}, err
	}

	draft := normalize(customer, lines, products, w.now())
	if err := validateDraft(draft); err != nil {
		return domain.Order{}, err
	}

	if err := w.step(ctx, domain.OrderStepPersist, func(ctx context.Context) error {
		var createErr error
		order, createErr = w.orders.Create(ctx, draft)
		if createErr != nil {
			return fmt.Errorf("create order: %w", createErr)
		}
		return nil
	}); err != nil {
		return domain.Order{}, err
	}

	if err := w.step(ctx, domain.OrderStepDecrement, func(ctx context.Context) error {
		return w.decrementStock(ctx, order, products)
	}); err != nil {
		w.emitEvent(order, EventTypeOrderStockUpdateFailed, map[string]interface{}{
			"reason": err.Error(),
		})
		return domain.Order{}, &domain.StockUpdateError{Order: order, Err: err}
	}

	w.emitEvent(order, EventTypeOrderCreated, nil)
	return order, nil
}

// step выполняет шаг в отдельном span и записывает его длительность.
func (w *Workflow) step(ctx context.Context, step domain.OrderStep, fn func(ctx context.Context) error) error {
	ctx, span := w.tracer.Start(ctx, "ordering."+string(step))
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	if w.metrics != nil {
		w.metrics.RecordStepDuration(string(step), time.Since(start))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (w *Workflow) loadProducts(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	found, err := w.catalog.FindAllByID(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("find products: %w", err)
	}
	if len(found) == 0 {
		return nil, domain.ErrNoProductsFound
	}

	products := make(map[string]domain.Product, len(found))
	for _, p := range found {
		if _, ok := products[p.ID]; !ok {
			products[p.ID] = p
		}
	}

	if len(products) != len(ids) {
		missing := make([]string, 0, len(ids)-len(products))
		for _, id := range ids {
			if _, ok := products[id]; !ok {
				missing = append(missing, id)
			}
		}
		return nil, &domain.ProductsMissingError{Missing: missing}
	}

	return products, nil
}

// decrementStock списывает остатки по фактически сохранённым позициям.
func (w *Workflow) decrementStock(ctx context.Context, order domain.Order, products map[string]domain.Product) error {
	updates := make([]domain.StockUpdate, 0, len(order.Lines))
	for _, line := range order.Lines {
		product, ok := products[line.ProductID]
		if !ok {
			return fmt.Errorf("persisted line references unknown product %s", line.ProductID)
		}
		updates = append(updates, domain.StockUpdate{
			ProductID:        line.ProductID,
			Quantity:         product.Quantity - line.Quantity,
			ExpectedQuantity: product.Quantity,
		})
	}

	if err := w.catalog.UpdateQuantity(ctx, updates); err != nil {
		return fmt.Errorf("update stock: %w", err)
	}
	return nil
}

func (w *Workflow) finish(span trace.Span, customerID string, order domain.Order, err error) {
	fields := log.Fields{"customer_id": customerID}

	switch {
	case err == nil:
		span.SetAttributes(
			attribute.String("order.id", order.ID),
			attribute.Int64("order.amount_minor", order.AmountMinor),
		)
		span.SetStatus(codes.Ok, "")
		if w.metrics != nil {
			w.metrics.RecordCreated(len(order.Lines))
		}
		fields["order_id"] = order.ID
		fields["lines"] = len(order.Lines)
		fields["amount_minor"] = order.AmountMinor
		w.logger.WithFields(fields).Info("order created")
	case domain.IsBusinessError(err):
		reason := rejectionReason(err)
		span.SetAttributes(attribute.String("order.rejection", reason))
		span.SetStatus(codes.Error, reason)
		if w.metrics != nil {
			w.metrics.RecordRejected(reason)
		}
		fields["reason"] = reason
		w.logger.WithError(err).WithFields(fields).Info("order rejected")
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		var stockErr *domain.StockUpdateError
		if errors.As(err, &stockErr) {
			if w.metrics != nil {
				w.metrics.RecordStockUpdateFailed()
			}
			fields["order_id"] = stockErr.Order.ID
			w.logger.WithError(err).WithFields(fields).Error("order persisted but stock update failed")
			return
		}
		if w.metrics != nil {
			w.metrics.RecordFailed()
		}
		w.logger.WithError(err).WithFields(fields).Warn("order creation failed")
	}
}

func (w *Workflow) emitEvent(order domain.Order, eventType string, extra map[string]interface{}) {
	if w.outbox == nil {
		return
	}

	payload := map[string]interface{}{
		"order_id":     order.ID,
		"customer_id":  order.CustomerID,
		"amount_minor": order.AmountMinor,
		"lines":        eventLines(order.Lines),
		"ts":           w.now().Format(time.RFC3339Nano),
	}
	for k, v := range extra {
		payload[k] = v
	}

	data, err := json.Marshal(payload)
	if err != nil {
		w.logger.WithError(err).WithFields(log.Fields{
			"order_id": order.ID,
			"event":    eventType,
		}).Error("marshal event failed")
		return
	}

	msg := domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   order.ID,
		EventType:     eventType,
		Payload:       data,
	}
	if _, err := w.outbox.Enqueue(msg); err != nil {
		w.logger.WithError(err).WithFields(log.Fields{
			"order_id": order.ID,
			"event":    eventType,
		}).Error("enqueue event failed")
		return
	}
	if w.metrics != nil {
		w.metrics.RecordOutboxEvent()
	}
}

type eventLine struct {
	ProductID  string `json:"product_id"`
	Quantity   int32  `json:"quantity"`
	PriceMinor int64  `json:"price_minor"`
}

func eventLines(lines []domain.OrderLine) []eventLine {
	out := make([]eventLine, 0, len(lines))
	for _, line := range lines {
		out = append(out, eventLine{
			ProductID:  line.ProductID,
			Quantity:   line.Quantity,
			PriceMinor: line.PriceMinor,
		})
	}
	return out
}
