package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// state — полное содержимое in-memory хранилища.
// Транзакция работает над копией и подменяет state только при успехе.
type state struct {
	seq seq

	products   map[int64]domain.Product
	carts      map[int64]domain.Cart
	cartByUser map[int64]int64
	orders     map[int64]domain.Order
	timeline   map[int64][]domain.TimelineEvent
	outbox     map[string]outboxRecord
}

type seq struct {
	product   int64
	cart      int64
	cartItem  int64
	order     int64
	orderItem int64
	outbox    int64
}

func newState() *state {
	return &state{
		products:   make(map[int64]domain.Product),
		carts:      make(map[int64]domain.Cart),
		cartByUser: make(map[int64]int64),
		orders:     make(map[int64]domain.Order),
		timeline:   make(map[int64][]domain.TimelineEvent),
		outbox:     make(map[string]outboxRecord),
	}
}

func (s *state) clone() *state {
	dst := &state{
		seq:        s.seq,
		products:   make(map[int64]domain.Product, len(s.products)),
		carts:      make(map[int64]domain.Cart, len(s.carts)),
		cartByUser: make(map[int64]int64, len(s.cartByUser)),
		orders:     make(map[int64]domain.Order, len(s.orders)),
		timeline:   make(map[int64][]domain.TimelineEvent, len(s.timeline)),
		outbox:     make(map[string]outboxRecord, len(s.outbox)),
	}
	for id, p := range s.products {
		dst.products[id] = p
	}
	for id, c := range s.carts {
		dst.carts[id] = cloneCart(c)
	}
	for user, id := range s.cartByUser {
		dst.cartByUser[user] = id
	}
	for id, o := range s.orders {
		dst.orders[id] = cloneOrder(o)
	}
	for id, events := range s.timeline {
		dst.timeline[id] = append([]domain.TimelineEvent(nil), events...)
	}
	for id, rec := range s.outbox {
		dst.outbox[id] = rec
	}
	return dst
}

// Store — in-memory реализация domain.Store для локальной разработки и тестов.
// Транзакции сериализуются общим мьютексом.
type Store struct {
	mu    sync.RWMutex
	state *state
}

// NewStore создаёт пустое хранилище.
func NewStore() *Store {
	return &Store{state: newState()}
}

// Repositories возвращает репозитории, где каждый вызов выполняется отдельно.
func (s *Store) Repositories() domain.Repositories {
	return s.bind(binding{store: s})
}

// InTx выполняет fn над копией состояния. Ошибка или паника отбрасывают копию.
func (s *Store) InTx(ctx context.Context, fn func(tx domain.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(s.bind(binding{store: s, tx: work})); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *Store) bind(b binding) domain.Repositories {
	return domain.Repositories{
		Products: &productRepositoryInMemory{b},
		Carts:    &cartRepositoryInMemory{b},
		Orders:   &orderRepositoryInMemory{b},
		Timeline: &timelineRepositoryInMemory{b},
		Outbox:   &outboxRepositoryInMemory{b},
	}
}

// binding привязывает репозиторий либо к транзакции, либо к хранилищу целиком.
type binding struct {
	store *Store
	tx    *state
}

func (b binding) read(fn func(st *state) error) error {
	if b.tx != nil {
		return fn(b.tx)
	}
	b.store.mu.RLock()
	defer b.store.mu.RUnlock()
	return fn(b.store.state)
}

// write вне транзакции работает над копией, чтобы неудачная операция ничего не оставила.
func (b binding) write(fn func(st *state) error) error {
	if b.tx != nil {
		return fn(b.tx)
	}
	b.store.mu.Lock()
	defer b.store.mu.Unlock()

	work := b.store.state.clone()
	if err := fn(work); err != nil {
		return err
	}
	b.store.state = work
	return nil
}

func cloneCart(c domain.Cart) domain.Cart {
	c.Items = append([]domain.CartItem(nil), c.Items...)
	return c
}

func cloneOrder(o domain.Order) domain.Order {
	o.Items = append([]domain.OrderItem(nil), o.Items...)
	return o
}

var _ domain.Store = (*Store)(nil)
