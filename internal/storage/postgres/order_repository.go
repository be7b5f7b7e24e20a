package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/GustavoSabel/fullcycle-desafios-03-ddd-order-repository/internal/domain"
	"github.com/GustavoSabel/fullcycle-desafios-03-ddd-order-repository/internal/metrics"
)

const (
	opTimeout = 5 * time.Second

	aggregateTypeOrder = "order"
)

type orderRepository struct {
	db      *sql.DB
	logger  *log.Entry
	metrics *metrics.RepositoryMetrics
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{
		db:      store.DB(),
		logger:  log.WithField("component", "order-repository"),
		metrics: metrics.NewRepositoryMetrics(),
	}
}

// Create вставляет заголовок, все позиции и outbox-событие одной транзакцией.
// Конфликт по существующему ID не обрабатывается отдельно: ошибка ограничения
// уникальности приходит от хранилища как есть.
func (r *orderRepository) Create(order *domain.Order) (err error) {
	start := time.Now()
	defer func() { r.metrics.ObserveOperation("create", time.Since(start), err) }()

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, customer_id, total)
		VALUES ($1, $2, $3)
	`, order.ID(), order.CustomerID(), order.Total())
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for _, item := range order.Items() {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (id, name, price, product_id, quantity, order_id)
			VALUES ($1, $2, $3, $4, $5, $6)
		`,
			item.ID(), item.Name(), item.Price(), item.ProductID(), item.Quantity(), order.ID(),
		); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	if err = r.enqueueEventTx(ctx, tx, order, domain.EventOrderCreated); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create order: %w", err)
	}

	r.logger.WithFields(log.Fields{
		"order_id": order.ID(),
		"items":    len(order.Items()),
	}).Debug("order created")

	return nil
}

// Find восстанавливает агрегат из строк через доменные конструкторы:
// повреждённый набор строк всплывает как ошибка валидации, а не частичный объект.
func (r *orderRepository) Find(id string) (_ *domain.Order, err error) {
	start := time.Now()
	defer func() { r.metrics.ObserveOperation("find", time.Since(start), err) }()

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var customerID string
	err = r.db.QueryRowContext(ctx, `
		SELECT customer_id
		FROM orders
		WHERE id = $1
	`, id).Scan(&customerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, fmt.Errorf("select order: %w", err)
	}

	items, err := r.loadItems(ctx, id)
	if err != nil {
		return nil, err
	}

	order, err := domain.NewOrder(id, customerID, items)
	if err != nil {
		return nil, fmt.Errorf("rebuild order %s: %w", id, err)
	}

	return order, nil
}

// FindAll возвращает все заказы в порядке итерации хранилища.
func (r *orderRepository) FindAll() (_ []*domain.Order, err error) {
	start := time.Now()
	defer func() { r.metrics.ObserveOperation("find_all", time.Since(start), err) }()

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, customer_id
		FROM orders
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	type header struct {
		id         string
		customerID string
	}

	headers := make([]header, 0)
	for rows.Next() {
		var h header
		if err = rows.Scan(&h.id, &h.customerID); err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		headers = append(headers, h)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}

	orders := make([]*domain.Order, 0, len(headers))
	for _, h := range headers {
		items, itemsErr := r.loadItems(ctx, h.id)
		if itemsErr != nil {
			err = itemsErr
			return nil, err
		}
		order, buildErr := domain.NewOrder(h.id, h.customerID, items)
		if buildErr != nil {
			err = fmt.Errorf("rebuild order %s: %w", h.id, buildErr)
			return nil, err
		}
		orders = append(orders, order)
	}

	return orders, nil
}

// Update синхронизирует сохранённые строки с агрегатом одной транзакцией:
// снимок сохранённых позиций, безусловное обновление заголовка и сверка
// позиций по id — удалить отсутствующие, вставить новые, перезаписать общие.
// Любая ошибка откатывает транзакцию целиком.
func (r *orderRepository) Update(order *domain.Order) (err error) {
	start := time.Now()
	defer func() { r.metrics.ObserveOperation("update", time.Since(start), err) }()

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// Снимок: блокируем заголовок и читаем id сохранённых позиций.
	var headerID string
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM orders WHERE id = $1 FOR UPDATE
	`, order.ID()).Scan(&headerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrOrderNotFound
		}
		return fmt.Errorf("lock order: %w", err)
	}

	persisted, err := r.loadItemIDsTx(ctx, tx, order.ID())
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE orders
		SET customer_id = $1,
		    total = $2
		WHERE id = $3
	`, order.CustomerID(), order.Total(), order.ID())
	if err != nil {
		return fmt.Errorf("update order header: %w", err)
	}

	current := make(map[string]struct{}, len(order.Items()))
	for _, item := range order.Items() {
		current[item.ID()] = struct{}{}
	}

	var inserted, updated, deleted int

	// Удаляем строки, чьих id больше нет в агрегате.
	for itemID := range persisted {
		if _, ok := current[itemID]; ok {
			continue
		}
		if _, err = tx.ExecContext(ctx, `
			DELETE FROM order_items WHERE id = $1
		`, itemID); err != nil {
			return fmt.Errorf("delete order item %s: %w", itemID, err)
		}
		deleted++
	}

	// Общие id перезаписываем целиком, новые вставляем с FK заказа.
	// Идентификатор и FK существующих строк не трогаем.
	for _, item := range order.Items() {
		if _, ok := persisted[item.ID()]; ok {
			if _, err = tx.ExecContext(ctx, `
				UPDATE order_items
				SET name = $1,
				    price = $2,
				    product_id = $3,
				    quantity = $4
				WHERE id = $5
			`,
				item.Name(), item.Price(), item.ProductID(), item.Quantity(), item.ID(),
			); err != nil {
				return fmt.Errorf("update order item %s: %w", item.ID(), err)
			}
			updated++
			continue
		}

		if _, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (id, name, price, product_id, quantity, order_id)
			VALUES ($1, $2, $3, $4, $5, $6)
		`,
			item.ID(), item.Name(), item.Price(), item.ProductID(), item.Quantity(), order.ID(),
		); err != nil {
			return fmt.Errorf("insert order item %s: %w", item.ID(), err)
		}
		inserted++
	}

	if err = r.enqueueEventTx(ctx, tx, order, domain.EventOrderUpdated); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit update order: %w", err)
	}

	r.metrics.AddItemSync(metrics.ItemSyncInserted, inserted)
	r.metrics.AddItemSync(metrics.ItemSyncUpdated, updated)
	r.metrics.AddItemSync(metrics.ItemSyncDeleted, deleted)

	r.logger.WithFields(log.Fields{
		"order_id": order.ID(),
		"inserted": inserted,
		"updated":  updated,
		"deleted":  deleted,
	}).Debug("order items synchronized")

	return nil
}

func (r *orderRepository) loadItems(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, price, product_id, quantity
		FROM order_items
		WHERE order_id = $1
		ORDER BY id
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.OrderItem, 0)
	for rows.Next() {
		var (
			id, name, productID string
			price               float64
			quantity            int
		)
		if err := rows.Scan(&id, &name, &price, &productID, &quantity); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		item, err := domain.NewOrderItem(id, name, price, productID, quantity)
		if err != nil {
			return nil, fmt.Errorf("rebuild order item %s: %w", id, err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}

	return items, nil
}

func (r *orderRepository) loadItemIDsTx(ctx context.Context, tx *sql.Tx, orderID string) (map[string]struct{}, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id FROM order_items WHERE order_id = $1
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load persisted item ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan persisted item id: %w", err)
		}
		ids[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate persisted item ids: %w", err)
	}

	return ids, nil
}

// enqueueEventTx кладёт событие в outbox той же транзакцией, что и строки заказа.
func (r *orderRepository) enqueueEventTx(ctx context.Context, tx *sql.Tx, order *domain.Order, eventType string) error {
	payload, err := json.Marshal(map[string]any{
		"order_id":    order.ID(),
		"customer_id": order.CustomerID(),
		"total":       order.Total(),
		"item_count":  len(order.Items()),
	})
	if err != nil {
		return fmt.Errorf("marshal outbox payload: %w", err)
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO outbox_messages (
			id, aggregate_type, aggregate_id, event_type, payload,
			status, attempt_count, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,'pending',0,$6,$7)
	`,
		uuid.NewString(), aggregateTypeOrder, order.ID(), eventType, payload, now, now,
	); err != nil {
		return fmt.Errorf("enqueue outbox event: %w", err)
	}

	return nil
}

var _ domain.OrderRepository = (*orderRepository)(nil)
