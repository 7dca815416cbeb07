package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/ordering/internal/domain"
)

// StockLocker сериализует заказы по товарам внутри одного процесса.
type StockLocker struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

// NewStockLocker создаёт locker без захваченных блокировок.
func NewStockLocker() *StockLocker {
	return &StockLocker{locks: make(map[string]chan struct{})}
}

// Lock захватывает блокировки в отсортированном порядке, чтобы исключить deadlock
// между заказами с пересекающимися товарами.
func (l *StockLocker) Lock(ctx context.Context, productIDs []string) (func(), error) {
	ids := sortedUnique(productIDs)
	held := make([]chan struct{}, 0, len(ids))

	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			<-held[i]
		}
	}

	for _, id := range ids {
		ch := l.slot(id)
		select {
		case ch <- struct{}{}:
			held = append(held, ch)
		case <-ctx.Done():
			release()
			return nil, ctx.Err()
		}
	}

	var once sync.Once
	return func() { once.Do(release) }, nil
}

func (l *StockLocker) slot(id string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.locks[id]
	if !ok {
		ch = make(chan struct{}, 1)
		l.locks[id] = ch
	}
	return ch
}

func sortedUnique(ids []string) []string {
	set := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := set[id]; ok {
			continue
		}
		set[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

var _ domain.StockLocker = (*StockLocker)(nil)
