package memory

import (
	"fmt"
	"sort"
	"sync"

	"github.com/GustavoSabel/fullcycle-desafios-03-ddd-order-repository/internal/domain"
)

// Строковое представление заказа: агрегат никогда не хранится живой ссылкой,
// только скопированные значения строк — как в реляционном хранилище.
type headerRow struct {
	id         string
	customerID string
	total      float64
}

type itemRow struct {
	id        string
	name      string
	price     float64
	productID string
	quantity  int
}

// Операции записи, передаваемые в write hook.
const (
	writeOpHeader = "header"
	writeOpInsert = "insert"
	writeOpUpdate = "update"
	writeOpDelete = "delete"
)

// orderRepositoryInMemory — in-memory реализация OrderRepository для локальной
// разработки и тестов. Update повторяет diff-синхронизацию PostgreSQL-реализации
// на staged-копии строк, поэтому сбой посреди применения не оставляет частичного
// состояния.
type orderRepositoryInMemory struct {
	mu      sync.RWMutex
	headers map[string]headerRow
	items   map[string]map[string]itemRow
	ids     []string

	// writeHook вызывается перед каждой строковой операцией Update;
	// ошибка из хука прерывает применение до коммита (инъекция сбоев в тестах).
	writeHook func(op, itemID string) error
}

// NewOrderRepository возвращает in-memory репозиторий заказов.
func NewOrderRepository() *orderRepositoryInMemory {
	return &orderRepositoryInMemory{
		headers: make(map[string]headerRow),
		items:   make(map[string]map[string]itemRow),
	}
}

// SetWriteHook задаёт перехватчик строковых операций Update (используется в тестах).
func (r *orderRepositoryInMemory) SetWriteHook(hook func(op, itemID string) error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writeHook = hook
}

// Create сохраняет заголовок и позиции, если ID ещё не занят.
func (r *orderRepositoryInMemory) Create(order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.headers[order.ID()]; exists {
		// Аналог нарушения ограничения уникальности в реляционном хранилище.
		return fmt.Errorf("order %s already exists", order.ID())
	}

	r.headers[order.ID()] = headerRowFrom(order)
	r.items[order.ID()] = itemRowsFrom(order)
	r.ids = append(r.ids, order.ID())
	return nil
}

// Find восстанавливает заказ из строк или возвращает ErrOrderNotFound.
func (r *orderRepositoryInMemory) Find(id string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	header, ok := r.headers[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return rebuildOrder(header, r.items[id])
}

// FindAll возвращает все заказы в порядке их создания.
func (r *orderRepositoryInMemory) FindAll() ([]*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*domain.Order, 0, len(r.ids))
	for _, id := range r.ids {
		order, err := rebuildOrder(r.headers[id], r.items[id])
		if err != nil {
			return nil, err
		}
		result = append(result, order)
	}
	return result, nil
}

// Update применяет diff к staged-копии строк и подменяет состояние только
// после успешного применения всех операций: всё или ничего.
func (r *orderRepositoryInMemory) Update(order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	persisted, ok := r.items[order.ID()]
	if !ok {
		return domain.ErrOrderNotFound
	}

	if err := r.invokeWriteHook(writeOpHeader, order.ID()); err != nil {
		return err
	}
	stagedHeader := headerRowFrom(order)

	staged := make(map[string]itemRow, len(persisted))
	for id, row := range persisted {
		staged[id] = row
	}

	current := make(map[string]struct{}, len(order.Items()))
	for _, item := range order.Items() {
		current[item.ID()] = struct{}{}
	}

	// Удаляем строки, чьих id больше нет в агрегате.
	for id := range persisted {
		if _, ok := current[id]; ok {
			continue
		}
		if err := r.invokeWriteHook(writeOpDelete, id); err != nil {
			return err
		}
		delete(staged, id)
	}

	// Общие id перезаписываем, новые вставляем.
	for _, item := range order.Items() {
		op := writeOpInsert
		if _, ok := persisted[item.ID()]; ok {
			op = writeOpUpdate
		}
		if err := r.invokeWriteHook(op, item.ID()); err != nil {
			return err
		}
		staged[item.ID()] = itemRowFrom(item)
	}

	// Коммит: подменяем состояние целиком.
	r.headers[order.ID()] = stagedHeader
	r.items[order.ID()] = staged
	return nil
}

func (r *orderRepositoryInMemory) invokeWriteHook(op, id string) error {
	if r.writeHook == nil {
		return nil
	}
	return r.writeHook(op, id)
}

func headerRowFrom(order *domain.Order) headerRow {
	return headerRow{
		id:         order.ID(),
		customerID: order.CustomerID(),
		total:      order.Total(),
	}
}

func itemRowFrom(item domain.OrderItem) itemRow {
	return itemRow{
		id:        item.ID(),
		name:      item.Name(),
		price:     item.Price(),
		productID: item.ProductID(),
		quantity:  item.Quantity(),
	}
}

func itemRowsFrom(order *domain.Order) map[string]itemRow {
	rows := make(map[string]itemRow, len(order.Items()))
	for _, item := range order.Items() {
		rows[item.ID()] = itemRowFrom(item)
	}
	return rows
}

// rebuildOrder собирает агрегат из строк через доменные конструкторы:
// порядок позиций — по id, как в SQL-реализации.
func rebuildOrder(header headerRow, rows map[string]itemRow) (*domain.Order, error) {
	itemIDs := make([]string, 0, len(rows))
	for id := range rows {
		itemIDs = append(itemIDs, id)
	}
	sort.Strings(itemIDs)

	items := make([]domain.OrderItem, 0, len(itemIDs))
	for _, id := range itemIDs {
		row := rows[id]
		item, err := domain.NewOrderItem(row.id, row.name, row.price, row.productID, row.quantity)
		if err != nil {
			return nil, fmt.Errorf("rebuild order item %s: %w", id, err)
		}
		items = append(items, item)
	}

	order, err := domain.NewOrder(header.id, header.customerID, items)
	if err != nil {
		return nil, fmt.Errorf("rebuild order %s: %w", header.id, err)
	}
	return order, nil
}

var _ domain.OrderRepository = (*orderRepositoryInMemory)(nil)
