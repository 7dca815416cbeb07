// Command place-order оформляет один заказ через OrderCreationWorkflow и печатает его в JSON.
//
//	place-order -customer C1 -item P1:3 -item P2:2
//
// Коды выхода: 0 при созданном заказе, 2 при бизнес-отказе, 1 при ошибке инфраструктуры или аргументов.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ordering/internal/app"
	"github.com/vladislavdragonenkov/ordering/internal/domain"
	"github.com/vladislavdragonenkov/ordering/internal/tracing"
)

const (
	exitOK       = 0
	exitFailure  = 1
	exitRejected = 2

	defaultTimeout = 30 * time.Second
)

// itemsFlag собирает повторяющиеся -item PRODUCT:QTY.
type itemsFlag []domain.RequestedLine

func (f *itemsFlag) String() string {
	parts := make([]string, 0, len(*f))
	for _, line := range *f {
		parts = append(parts, fmt.Sprintf("%s:%d", line.ProductID, line.Quantity))
	}
	return strings.Join(parts, ",")
}

func (f *itemsFlag) Set(value string) error {
	line, err := parseItem(value)
	if err != nil {
		return err
	}
	*f = append(*f, line)
	return nil
}

func parseItem(value string) (domain.RequestedLine, error) {
	id, qty, ok := strings.Cut(strings.TrimSpace(value), ":")
	if !ok || strings.TrimSpace(id) == "" {
		return domain.RequestedLine{}, fmt.Errorf("item %q: expected PRODUCT:QTY", value)
	}
	n, err := strconv.ParseInt(strings.TrimSpace(qty), 10, 32)
	if err != nil {
		return domain.RequestedLine{}, fmt.Errorf("item %q: invalid quantity: %w", value, err)
	}
	return domain.RequestedLine{ProductID: strings.TrimSpace(id), Quantity: int32(n)}, nil
}

type orderLineView struct {
	ID         string `json:"id"`
	ProductID  string `json:"product_id"`
	Quantity   int32  `json:"quantity"`
	PriceMinor int64  `json:"price_minor"`
}

type orderView struct {
	ID          string          `json:"id"`
	CustomerID  string          `json:"customer_id"`
	AmountMinor int64           `json:"amount_minor"`
	CreatedAt   time.Time       `json:"created_at"`
	Lines       []orderLineView `json:"lines"`
}

func newOrderView(order domain.Order) orderView {
	view := orderView{
		ID:          order.ID,
		CustomerID:  order.CustomerID,
		AmountMinor: order.AmountMinor,
		CreatedAt:   order.CreatedAt,
		Lines:       make([]orderLineView, 0, len(order.Lines)),
	}
	for _, line := range order.Lines {
		view.Lines = append(view.Lines, orderLineView{
			ID:         line.ID,
			ProductID:  line.ProductID,
			Quantity:   line.Quantity,
			PriceMinor: line.PriceMinor,
		})
	}
	return view
}

func run(ctx context.Context, args []string, getenv func(string) string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("place-order", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		customerID string
		items      itemsFlag
		seedPath   string
		driver     string
		dsn        string
		redisAddr  string
	)
	fs.StringVar(&customerID, "customer", "", "customer id")
	fs.Var(&items, "item", "order line PRODUCT:QTY (repeatable)")
	fs.StringVar(&seedPath, "seed", "", "JSON file with customers and products to upsert before ordering")
	fs.StringVar(&driver, "driver", string(app.StorageDriverPostgres), "storage driver: postgres|memory")
	fs.StringVar(&dsn, "dsn", "", "PostgreSQL DSN (fallback: ORDERING_POSTGRES_DSN)")
	fs.StringVar(&redisAddr, "redis", "", "Redis address for stock locks (fallback: ORDERING_REDIS_ADDR)")
	if err := fs.Parse(args); err != nil {
		return exitFailure
	}

	if strings.TrimSpace(dsn) == "" {
		dsn = strings.TrimSpace(getenv("ORDERING_POSTGRES_DSN"))
	}
	if strings.TrimSpace(redisAddr) == "" {
		redisAddr = strings.TrimSpace(getenv("ORDERING_REDIS_ADDR"))
	}

	cfg := app.DefaultConfig()
	cfg.StorageDriver = app.StorageDriver(strings.ToLower(strings.TrimSpace(driver)))
	cfg.PostgresDSN = dsn
	cfg.RedisAddr = redisAddr
	cfg.OTLPEndpoint = strings.TrimSpace(getenv("ORDERING_OTLP_ENDPOINT"))
	cfg.OTLPInsecure = strings.EqualFold(strings.TrimSpace(getenv("ORDERING_OTLP_INSECURE")), "true")

	var seed app.CatalogSeed
	if seedPath != "" {
		loaded, err := app.LoadCatalogSeed(seedPath)
		if err != nil {
			_, _ = fmt.Fprintln(stderr, err)
			return exitFailure
		}
		seed = loaded
	}

	logger := log.WithField("component", "place-order")

	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing("place-order"))
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "setup tracing: %v\n", err)
		return exitFailure
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.WithError(err).Warn("failed to flush traces")
		}
	}()

	o, err := app.OpenOrdering(ctx, cfg, seed, logger)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "open ordering: %v\n", err)
		return exitFailure
	}
	defer func() {
		if err := o.Close(); err != nil {
			logger.WithError(err).Warn("failed to close storage")
		}
	}()

	order, err := o.Workflow.Execute(ctx, customerID, items)

	var stockErr *domain.StockUpdateError
	switch {
	case err == nil:
	case errors.As(err, &stockErr):
		// заказ сохранён; печатаем его, чтобы оператор мог скорректировать остатки
		_ = writeJSON(stdout, newOrderView(stockErr.Order))
		_, _ = fmt.Fprintln(stderr, err)
		return exitFailure
	case domain.IsBusinessError(err):
		_, _ = fmt.Fprintf(stderr, "order rejected: %v\n", err)
		return exitRejected
	default:
		_, _ = fmt.Fprintf(stderr, "place order: %v\n", err)
		return exitFailure
	}

	if err := writeJSON(stdout, newOrderView(order)); err != nil {
		_, _ = fmt.Fprintln(stderr, err)
		return exitFailure
	}
	return exitOK
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetOutput(os.Stderr)
	log.SetLevel(log.WarnLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)

	code := run(ctx, os.Args[1:], os.Getenv, os.Stdout, os.Stderr)
	cancel()
	stop()
	os.Exit(code)
}
