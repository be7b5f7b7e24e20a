package postgres

import (
	"context"
	"errors"
	"math"
	"sort"
	"testing"
	"time"

	"github.com/GustavoSabel/fullcycle-desafios-03-ddd-order-repository/internal/domain"
)

func mustItem(t *testing.T, id string, price float64, qty int) domain.OrderItem {
	t.Helper()
	item, err := domain.NewOrderItem(id, "item "+id, price, "product-"+id, qty)
	if err != nil {
		t.Fatalf("make item %s: %v", id, err)
	}
	return item
}

func mustOrder(t *testing.T, id, customerID string, items ...domain.OrderItem) *domain.Order {
	t.Helper()
	order, err := domain.NewOrder(id, customerID, items)
	if err != nil {
		t.Fatalf("make order %s: %v", id, err)
	}
	return order
}

func itemIDs(order *domain.Order) []string {
	ids := make([]string, 0, len(order.Items()))
	for _, item := range order.Items() {
		ids = append(ids, item.ID())
	}
	sort.Strings(ids)
	return ids
}

func TestOrderRepository_PostgresCreateFindRoundTrip(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)

	order := mustOrder(t, "order-1", "customer-1",
		mustItem(t, "order-1-item-a", 100, 2),
		mustItem(t, "order-1-item-b", 50, 1),
	)
	if err := repo.Create(order); err != nil {
		t.Fatalf("create order: %v", err)
	}

	found, err := repo.Find(order.ID())
	if err != nil {
		t.Fatalf("find order: %v", err)
	}
	if found.ID() != order.ID() || found.CustomerID() != order.CustomerID() {
		t.Fatalf("unexpected order payload: id=%s customer=%s", found.ID(), found.CustomerID())
	}
	if got, want := itemIDs(found), itemIDs(order); len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("unexpected item ids: got=%v want=%v", got, want)
	}
	if math.Abs(found.Total()-order.Total()) > 1e-9 {
		t.Fatalf("unexpected total: got=%v want=%v", found.Total(), order.Total())
	}
}

func TestOrderRepository_PostgresUpdateDiffScenario(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)

	// Сохранено: [A(qty=2), B(qty=1)].
	initial := mustOrder(t, "order-diff", "customer-1",
		mustItem(t, "diff-item-a", 100, 2),
		mustItem(t, "diff-item-b", 50, 1),
	)
	if err := repo.Create(initial); err != nil {
		t.Fatalf("create order: %v", err)
	}

	// В памяти: [A(qty=3), C(qty=5)].
	changed := mustOrder(t, "order-diff", "customer-2",
		mustItem(t, "diff-item-a", 100, 3),
		mustItem(t, "diff-item-c", 20, 5),
	)
	if err := repo.Update(changed); err != nil {
		t.Fatalf("update order: %v", err)
	}

	found, err := repo.Find("order-diff")
	if err != nil {
		t.Fatalf("find order after update: %v", err)
	}
	if found.CustomerID() != "customer-2" {
		t.Fatalf("expected customer-2, got %s", found.CustomerID())
	}

	byID := make(map[string]domain.OrderItem)
	for _, item := range found.Items() {
		byID[item.ID()] = item
	}
	if len(byID) != 2 {
		t.Fatalf("expected item set {A, C}, got %v", itemIDs(found))
	}
	if item, ok := byID["diff-item-a"]; !ok || item.Quantity() != 3 {
		t.Fatalf("expected diff-item-a with qty 3, got %+v", byID)
	}
	if item, ok := byID["diff-item-c"]; !ok || item.Quantity() != 5 {
		t.Fatalf("expected diff-item-c with qty 5, got %+v", byID)
	}
	if _, ok := byID["diff-item-b"]; ok {
		t.Fatal("diff-item-b row must be deleted")
	}
}

func TestOrderRepository_PostgresErrors(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)

	if _, err := repo.Find("missing-order"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}

	base := mustOrder(t, "order-errors", "customer-2", mustItem(t, "errors-item-a", 150, 2))
	if err := repo.Update(base); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound on update missing, got %v", err)
	}

	if err := repo.Create(base); err != nil {
		t.Fatalf("create base order: %v", err)
	}

	// Конфликт по существующему ID не маппится в доменную ошибку:
	// приходит ошибка ограничения уникальности хранилища.
	err := repo.Create(base)
	if err == nil {
		t.Fatal("expected store conflict error on duplicate create")
	}
	if errors.Is(err, domain.ErrOrderNotFound) || domain.IsValidation(err) {
		t.Fatalf("duplicate create must surface as store error, got %v", err)
	}
}

func TestOrderRepository_PostgresFindAll(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)

	orders, err := repo.FindAll()
	if err != nil {
		t.Fatalf("find all on empty store: %v", err)
	}
	if len(orders) != 0 {
		t.Fatalf("expected empty result, got %d orders", len(orders))
	}

	first := mustOrder(t, "order-a", "customer-1", mustItem(t, "all-item-a", 10, 1))
	second := mustOrder(t, "order-b", "customer-2", mustItem(t, "all-item-b", 20, 2))
	if err := repo.Create(first); err != nil {
		t.Fatalf("create first: %v", err)
	}
	if err := repo.Create(second); err != nil {
		t.Fatalf("create second: %v", err)
	}

	orders, err = repo.FindAll()
	if err != nil {
		t.Fatalf("find all: %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(orders))
	}
	if orders[0].ID() != "order-a" || orders[1].ID() != "order-b" {
		t.Fatalf("unexpected iteration order: %s, %s", orders[0].ID(), orders[1].ID())
	}
}

func TestOrderRepository_PostgresOutboxEventsEnqueued(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)
	outbox := NewOutboxRepository(store)

	order := mustOrder(t, "order-outbox", "customer-1", mustItem(t, "outbox-item-a", 10, 1))
	if err := repo.Create(order); err != nil {
		t.Fatalf("create order: %v", err)
	}

	order.ChangeCustomerID("customer-2")
	if err := repo.Update(order); err != nil {
		t.Fatalf("update order: %v", err)
	}

	pending, err := outbox.PullPending(10)
	if err != nil {
		t.Fatalf("pull pending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 outbox events, got %d", len(pending))
	}
	if pending[0].EventType != domain.EventOrderCreated || pending[1].EventType != domain.EventOrderUpdated {
		t.Fatalf("unexpected event types: %s, %s", pending[0].EventType, pending[1].EventType)
	}
	for _, msg := range pending {
		if msg.AggregateID != "order-outbox" {
			t.Fatalf("unexpected aggregate id: %s", msg.AggregateID)
		}
	}
}

func TestOrderRepository_PostgresUpdateRollbackOnConstraintViolation(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)

	first := mustOrder(t, "order-tx-1", "customer-1", mustItem(t, "tx-item-a", 10, 1))
	second := mustOrder(t, "order-tx-2", "customer-2", mustItem(t, "tx-item-b", 20, 2))
	if err := repo.Create(first); err != nil {
		t.Fatalf("create first: %v", err)
	}
	if err := repo.Create(second); err != nil {
		t.Fatalf("create second: %v", err)
	}

	// Вставка позиции с чужим существующим PK упадёт на середине применения
	// diff-а; заголовок и удаления должны откатиться вместе с ней.
	conflicting := mustOrder(t, "order-tx-1", "customer-9",
		mustItem(t, "tx-item-c", 5, 1),
		mustItem(t, "tx-item-b", 20, 2), // PK уже занят заказом order-tx-2
	)
	if err := repo.Update(conflicting); err == nil {
		t.Fatal("expected constraint violation on conflicting item insert")
	}

	found, err := repo.Find("order-tx-1")
	if err != nil {
		t.Fatalf("find after failed update: %v", err)
	}
	if found.CustomerID() != "customer-1" {
		t.Fatalf("header update leaked: customer=%s", found.CustomerID())
	}
	if got := itemIDs(found); len(got) != 1 || got[0] != "tx-item-a" {
		t.Fatalf("item writes leaked: %v", got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var count int
	if err := store.DB().QueryRowContext(ctx, `
		SELECT COUNT(*) FROM order_items WHERE id = 'tx-item-c'
	`).Scan(&count); err != nil {
		t.Fatalf("count leaked rows: %v", err)
	}
	if count != 0 {
		t.Fatal("inserted item row leaked past rollback")
	}
}
