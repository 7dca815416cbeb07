// Command loadtest нагружает сценарий создания заказа конкурентными запросами
// на общий набор товаров и проверяет, что остатки не ушли в минус и сходятся
// с суммой оформленных позиций.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ordering/internal/app"
	"github.com/vladislavdragonenkov/ordering/internal/domain"
)

const (
	outcomeCreated           = "created"
	outcomeInsufficientStock = "insufficient_stock"
	outcomeRejected          = "rejected"
	outcomeStockUpdateFailed = "stock_update_failed"
	outcomeLockUnavailable   = "lock_unavailable"
	outcomeError             = "error"

	loadCustomerID = "LOAD-C1"
)

type config struct {
	total       int
	totalSet    bool
	duration    time.Duration
	concurrency int
	timeout     time.Duration
	products    int
	stock       int
	lines       int
	qty         int
	priceMinor  int64
	useLocker   bool
	driver      string
	dsn         string
	redisAddr   string
	outputPath  string
}

type latencySummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type productReport struct {
	Initial int32 `json:"initial"`
	Ordered int32 `json:"ordered"`
	Final   int32 `json:"final"`
	// Unreconciled считает количество в заказах, сохранённых без списания остатка.
	Unreconciled int32 `json:"unreconciled,omitempty"`
}

type inventoryReport struct {
	Consistent bool                     `json:"consistent"`
	Products   map[string]productReport `json:"products"`
}

type report struct {
	StartedAt         time.Time        `json:"started_at"`
	DurationSeconds   float64          `json:"duration_seconds"`
	TotalScenarios    int64            `json:"total_scenarios"`
	SuccessScenarios  int64            `json:"success_scenarios"`
	FailedScenarios   int64            `json:"failed_scenarios"`
	ErrorRate         float64          `json:"error_rate"`
	RPS               float64          `json:"rps"`
	ScenarioLatencyMs latencySummary   `json:"scenario_latency_ms"`
	Outcomes          map[string]int64 `json:"outcomes"`
	Inventory         inventoryReport  `json:"inventory"`
}

// collector собирает исходы сценариев и списанные количества по товарам.
type collector struct {
	mu        sync.Mutex
	calls     int64
	failed    int64
	outcomes  map[string]int64
	latencies []float64
	ordered   map[string]int32
	// unreconciled хранит позиции заказов, после которых списание остатка не удалось.
	unreconciled map[string]int32
}

func newCollector() *collector {
	return &collector{
		outcomes:     make(map[string]int64),
		ordered:      make(map[string]int32),
		unreconciled: make(map[string]int32),
	}
}

func (c *collector) record(latency time.Duration, outcome string, order domain.Order) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls++
	if !isExpectedOutcome(outcome) {
		c.failed++
	}
	c.outcomes[outcome]++
	c.latencies = append(c.latencies, float64(latency.Microseconds())/1000.0)
	target := c.ordered
	switch outcome {
	case outcomeCreated:
	case outcomeStockUpdateFailed:
		target = c.unreconciled
	default:
		return
	}
	for _, line := range order.Lines {
		target[line.ProductID] += line.Quantity
	}
}

func (c *collector) orderedQuantities() (ordered, unreconciled map[string]int32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return copyQuantities(c.ordered), copyQuantities(c.unreconciled)
}

func copyQuantities(in map[string]int32) map[string]int32 {
	out := make(map[string]int32, len(in))
	for id, qty := range in {
		out[id] = qty
	}
	return out
}

func (c *collector) buildReport(startedAt time.Time, duration time.Duration) report {
	c.mu.Lock()
	defer c.mu.Unlock()

	outcomes := make(map[string]int64, len(c.outcomes))
	for outcome, count := range c.outcomes {
		outcomes[outcome] = count
	}

	result := report{
		StartedAt:         startedAt.UTC(),
		DurationSeconds:   duration.Seconds(),
		TotalScenarios:    c.calls,
		SuccessScenarios:  c.calls - c.failed,
		FailedScenarios:   c.failed,
		ErrorRate:         ratio(c.failed, c.calls),
		ScenarioLatencyMs: buildLatencySummary(c.latencies),
		Outcomes:          outcomes,
	}
	if duration > 0 {
		result.RPS = float64(result.TotalScenarios) / duration.Seconds()
	}
	return result
}

// isExpectedOutcome сообщает, штатный ли исход под нагрузкой (включая отказ из-за исчерпанного остатка).
func isExpectedOutcome(outcome string) bool {
	switch outcome {
	case outcomeCreated, outcomeInsufficientStock, outcomeRejected:
		return true
	default:
		return false
	}
}

func classify(err error) string {
	var stockErr *domain.StockUpdateError
	switch {
	case err == nil:
		return outcomeCreated
	case errors.As(err, &stockErr):
		return outcomeStockUpdateFailed
	case errors.Is(err, domain.ErrInsufficientStock):
		return outcomeInsufficientStock
	case domain.IsBusinessError(err):
		return outcomeRejected
	case errors.Is(err, domain.ErrLockUnavailable):
		return outcomeLockUnavailable
	default:
		return outcomeError
	}
}

func parseConfig() (config, error) {
	var cfg config
	var timeoutValue string
	var durationValue string

	flag.IntVar(&cfg.total, "total", 400, "total scenarios to execute in count mode; in duration mode only used when explicitly set")
	flag.StringVar(&durationValue, "duration", "0s", "optional time-based run duration (e.g. 10m, 15m)")
	flag.IntVar(&cfg.concurrency, "concurrency", 40, "number of concurrent workers")
	flag.StringVar(&timeoutValue, "timeout", "5s", "per-order timeout")
	flag.IntVar(&cfg.products, "products", 4, "number of contended products")
	flag.IntVar(&cfg.stock, "stock", 100, "initial stock per product")
	flag.IntVar(&cfg.lines, "lines", 2, "distinct products per order")
	flag.IntVar(&cfg.qty, "qty", 1, "quantity per order line")
	flag.Int64Var(&cfg.priceMinor, "price-minor", 1000, "product price in minor units")
	flag.BoolVar(&cfg.useLocker, "lock", true, "serialize orders per product (in-process or redis lock)")
	flag.StringVar(&cfg.driver, "driver", string(app.StorageDriverMemory), "storage driver: memory|postgres")
	flag.StringVar(&cfg.dsn, "dsn", "", "PostgreSQL DSN (fallback: ORDERING_POSTGRES_DSN)")
	flag.StringVar(&cfg.redisAddr, "redis", "", "Redis address for stock locks")
	flag.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	flag.Parse()

	timeout, err := time.ParseDuration(strings.TrimSpace(timeoutValue))
	if err != nil {
		return cfg, fmt.Errorf("parse timeout: %w", err)
	}
	cfg.timeout = timeout

	duration, err := time.ParseDuration(strings.TrimSpace(durationValue))
	if err != nil {
		return cfg, fmt.Errorf("parse duration: %w", err)
	}
	cfg.duration = duration

	flag.CommandLine.Visit(func(f *flag.Flag) {
		if f.Name == "total" {
			cfg.totalSet = true
		}
	})

	if strings.TrimSpace(cfg.dsn) == "" {
		cfg.dsn = strings.TrimSpace(os.Getenv("ORDERING_POSTGRES_DSN"))
	}

	if cfg.duration < 0 {
		return cfg, errors.New("duration must be >= 0")
	}
	if cfg.duration == 0 && cfg.total <= 0 {
		return cfg, errors.New("total must be > 0 when duration is not set")
	}
	if cfg.duration > 0 && cfg.totalSet && cfg.total <= 0 {
		return cfg, errors.New("total must be > 0 when explicitly set with duration")
	}
	if cfg.concurrency <= 0 {
		return cfg, errors.New("concurrency must be > 0")
	}
	if cfg.timeout <= 0 {
		return cfg, errors.New("timeout must be > 0")
	}
	if cfg.products <= 0 {
		return cfg, errors.New("products must be > 0")
	}
	if cfg.lines <= 0 || cfg.lines > cfg.products {
		return cfg, errors.New("lines must be between 1 and products")
	}
	if cfg.qty <= 0 || cfg.stock < 0 {
		return cfg, errors.New("qty must be > 0 and stock must be >= 0")
	}
	if cfg.priceMinor < 0 {
		return cfg, errors.New("price-minor must be >= 0")
	}
	if !cfg.useLocker && cfg.redisAddr != "" {
		return cfg, errors.New("redis lock requires -lock=true")
	}

	return cfg, nil
}

// appConfig переводит параметры нагрузки в конфигурацию приложения.
func (c config) appConfig() app.Config {
	cfg := app.DefaultConfig()
	cfg.StorageDriver = app.StorageDriver(strings.ToLower(strings.TrimSpace(c.driver)))
	cfg.PostgresDSN = c.dsn
	cfg.RedisAddr = c.redisAddr
	return cfg
}

func productIDs(runID string, n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("LOAD-%s-P%d", runID, i+1)
	}
	return ids
}

func buildSeed(cfg config, ids []string) app.CatalogSeed {
	seed := app.CatalogSeed{
		Customers: []app.SeedCustomer{{ID: loadCustomerID, Name: "Load test"}},
	}
	for _, id := range ids {
		seed.Products = append(seed.Products, app.SeedProduct{
			ID:         id,
			Name:       id,
			PriceMinor: cfg.priceMinor,
			Quantity:   int32(cfg.stock),
		})
	}
	return seed
}

// scenarioLines выбирает lines подряд идущих товаров, начиная со сдвига index.
func scenarioLines(cfg config, ids []string, index int) []domain.RequestedLine {
	lines := make([]domain.RequestedLine, 0, cfg.lines)
	for i := 0; i < cfg.lines; i++ {
		lines = append(lines, domain.RequestedLine{
			ProductID: ids[(index+i)%len(ids)],
			Quantity:  int32(cfg.qty),
		})
	}
	return lines
}

// orderExecutor описывает часть Workflow, нужную нагрузке.
type orderExecutor interface {
	Execute(ctx context.Context, customerID string, lines []domain.RequestedLine) (domain.Order, error)
}

func runScenario(ctx context.Context, exec orderExecutor, cfg config, ids []string, index int, col *collector) {
	ctx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	start := time.Now()
	order, err := exec.Execute(ctx, loadCustomerID, scenarioLines(cfg, ids, index))
	var stockErr *domain.StockUpdateError
	if errors.As(err, &stockErr) {
		order = stockErr.Order
	}
	col.record(time.Since(start), classify(err), order)
}

func run(ctx context.Context, cfg config) (report, error) {
	startedAt := time.Now()
	runID := fmt.Sprintf("%d", startedAt.UnixNano())
	ids := productIDs(runID, cfg.products)

	logger := log.WithField("component", "loadtest")
	o, err := app.OpenOrdering(ctx, cfg.appConfig(), buildSeed(cfg, ids), logger)
	if err != nil {
		return report{}, err
	}
	defer func() { _ = o.Close() }()

	var exec orderExecutor = o.Workflow
	if !cfg.useLocker {
		exec = app.NewUnlockedWorkflow(o)
	}

	col := newCollector()
	jobs := make(chan int, cfg.concurrency*2)
	var wg sync.WaitGroup
	for workerID := 0; workerID < cfg.concurrency; workerID++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				runScenario(ctx, exec, cfg, ids, id, col)
			}
		}()
	}

	dispatchJobs(jobs, cfg)
	wg.Wait()

	result := col.buildReport(startedAt, time.Since(startedAt))

	products, err := o.Catalog.FindAllByID(ctx, ids)
	if err != nil {
		return result, fmt.Errorf("reload products: %w", err)
	}
	ordered, unreconciled := col.orderedQuantities()
	result.Inventory = checkInventory(int32(cfg.stock), products, ordered, unreconciled)
	return result, nil
}

// checkInventory сверяет итоговые остатки с суммой списанных позиций.
// Заказы без списания (unreconciled) в сверку не входят, они только отражаются в отчёте.
func checkInventory(initial int32, products []domain.Product, ordered, unreconciled map[string]int32) inventoryReport {
	inv := inventoryReport{Consistent: true, Products: make(map[string]productReport, len(products))}
	for _, p := range products {
		pr := productReport{Initial: initial, Ordered: ordered[p.ID], Final: p.Quantity, Unreconciled: unreconciled[p.ID]}
		if pr.Final < 0 || pr.Ordered > pr.Initial || pr.Initial-pr.Ordered != pr.Final {
			inv.Consistent = false
		}
		inv.Products[p.ID] = pr
	}
	return inv
}

func main() {
	cfg, err := parseConfig()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}
	log.SetLevel(log.WarnLevel)

	result, err := run(context.Background(), cfg)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "load test failed: %v\n", err)
		os.Exit(1)
	}

	printReport(result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			os.Exit(1)
		}
	}

	if result.FailedScenarios > 0 || !result.Inventory.Consistent {
		os.Exit(1)
	}
}

func dispatchJobs(jobs chan<- int, cfg config) {
	defer close(jobs)

	if cfg.duration <= 0 {
		for i := 0; i < cfg.total; i++ {
			jobs <- i
		}
		return
	}

	timer := time.NewTimer(cfg.duration)
	defer timer.Stop()

	for i := 0; ; i++ {
		if cfg.totalSet && i >= cfg.total {
			return
		}

		select {
		case <-timer.C:
			return
		case jobs <- i:
		}
	}
}

func printReport(result report, cfg config) {
	fmt.Println("Load test summary")
	fmt.Printf("driver=%s lock=%t run=%s total=%d success=%d failed=%d error_rate=%.4f\n",
		cfg.driver,
		cfg.useLocker,
		runTarget(cfg),
		result.TotalScenarios,
		result.SuccessScenarios,
		result.FailedScenarios,
		result.ErrorRate,
	)
	fmt.Printf("duration=%.2fs rps=%.2f\n", result.DurationSeconds, result.RPS)
	fmt.Printf("scenario latency ms: min=%.2f avg=%.2f p50=%.2f p95=%.2f p99=%.2f max=%.2f\n",
		result.ScenarioLatencyMs.Min,
		result.ScenarioLatencyMs.Avg,
		result.ScenarioLatencyMs.P50,
		result.ScenarioLatencyMs.P95,
		result.ScenarioLatencyMs.P99,
		result.ScenarioLatencyMs.Max,
	)

	outcomes := make([]string, 0, len(result.Outcomes))
	for outcome := range result.Outcomes {
		outcomes = append(outcomes, outcome)
	}
	sort.Strings(outcomes)
	for _, outcome := range outcomes {
		fmt.Printf("%s: %d\n", outcome, result.Outcomes[outcome])
	}

	productIDs := make([]string, 0, len(result.Inventory.Products))
	for id := range result.Inventory.Products {
		productIDs = append(productIDs, id)
	}
	sort.Strings(productIDs)
	fmt.Printf("inventory consistent=%t\n", result.Inventory.Consistent)
	for _, id := range productIDs {
		p := result.Inventory.Products[id]
		fmt.Printf("%s: initial=%d ordered=%d final=%d unreconciled=%d\n", id, p.Initial, p.Ordered, p.Final, p.Unreconciled)
	}
}

func writeJSONReport(path string, result report) error {
	cleanPath := filepath.Clean(path)
	if cleanPath == "." || cleanPath == string(filepath.Separator) {
		return errors.New("output path must point to a file")
	}
	if cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) {
		return fmt.Errorf("output path must be inside current directory: %s", path)
	}

	// #nosec G304 -- path is an explicit CLI output parameter for local load-test reports.
	file, err := os.Create(cleanPath)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func runTarget(cfg config) string {
	if cfg.duration <= 0 {
		return fmt.Sprintf("count:%d", cfg.total)
	}
	if cfg.totalSet {
		return fmt.Sprintf("duration:%s,max-total:%d", cfg.duration, cfg.total)
	}
	return fmt.Sprintf("duration:%s", cfg.duration)
}

func buildLatencySummary(values []float64) latencySummary {
	if len(values) == 0 {
		return latencySummary{}
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	var sum float64
	for _, value := range sorted {
		sum += value
	}

	return latencySummary{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		Avg: sum / float64(len(sorted)),
		P50: percentile(sorted, 50),
		P95: percentile(sorted, 95),
		P99: percentile(sorted, 99),
	}
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}

	rank := (p / 100.0) * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}

	weight := rank - float64(lower)
	return sorted[lower] + (sorted[upper]-sorted[lower])*weight
}

func ratio(failed, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(failed) / float64(total)
}
