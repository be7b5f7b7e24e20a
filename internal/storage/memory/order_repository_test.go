package memory

import (
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/GustavoSabel/fullcycle-desafios-03-ddd-order-repository/internal/domain"
)

func mustItem(t *testing.T, id string, price float64, qty int) domain.OrderItem {
	t.Helper()
	item, err := domain.NewOrderItem(id, "item "+id, price, "product-"+id, qty)
	require.NoError(t, err)
	return item
}

func mustOrder(t *testing.T, id, customerID string, items ...domain.OrderItem) *domain.Order {
	t.Helper()
	order, err := domain.NewOrder(id, customerID, items)
	require.NoError(t, err)
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

func TestOrderRepository_CreateFindRoundTrip(t *testing.T) {
	repo := NewOrderRepository()

	order := mustOrder(t, "order-1", "customer-1",
		mustItem(t, "item-a", 100, 2),
		mustItem(t, "item-b", 50, 1),
	)
	require.NoError(t, repo.Create(order))

	found, err := repo.Find("order-1")
	require.NoError(t, err)
	require.Equal(t, order.ID(), found.ID())
	require.Equal(t, order.CustomerID(), found.CustomerID())
	require.Equal(t, itemIDs(order), itemIDs(found))
	require.InDelta(t, order.Total(), found.Total(), 1e-9)
}

func TestOrderRepository_CreateDuplicateID(t *testing.T) {
	repo := NewOrderRepository()

	order := mustOrder(t, "order-1", "customer-1", mustItem(t, "item-a", 10, 1))
	require.NoError(t, repo.Create(order))

	// Конфликт уникальности — ошибка хранилища, не доменная.
	err := repo.Create(order)
	require.Error(t, err)
	require.False(t, errors.Is(err, domain.ErrOrderNotFound))
}

func TestOrderRepository_FindMissing(t *testing.T) {
	repo := NewOrderRepository()

	_, err := repo.Find("missing")
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestOrderRepository_UpdateMissing(t *testing.T) {
	repo := NewOrderRepository()

	order := mustOrder(t, "order-404", "customer-1", mustItem(t, "item-a", 10, 1))
	require.ErrorIs(t, repo.Update(order), domain.ErrOrderNotFound)
}

func TestOrderRepository_UpdateDiffScenario(t *testing.T) {
	repo := NewOrderRepository()

	// Сохранено: [A(qty=2), B(qty=1)].
	initial := mustOrder(t, "order-1", "customer-1",
		mustItem(t, "item-a", 100, 2),
		mustItem(t, "item-b", 50, 1),
	)
	require.NoError(t, repo.Create(initial))

	// В памяти: [A(qty=3), C(qty=5)] и новый клиент.
	changed := mustOrder(t, "order-1", "customer-2",
		mustItem(t, "item-a", 100, 3),
		mustItem(t, "item-c", 20, 5),
	)
	require.NoError(t, repo.Update(changed))

	found, err := repo.Find("order-1")
	require.NoError(t, err)
	require.Equal(t, "customer-2", found.CustomerID())
	require.Equal(t, []string{"item-a", "item-c"}, itemIDs(found))

	byID := make(map[string]domain.OrderItem)
	for _, item := range found.Items() {
		byID[item.ID()] = item
	}
	require.Equal(t, 3, byID["item-a"].Quantity())
	require.Equal(t, 5, byID["item-c"].Quantity())
	require.InDelta(t, 100*3+20*5, found.Total(), 1e-9)
}

func TestOrderRepository_UpdateFailureKeepsPreState(t *testing.T) {
	repo := NewOrderRepository()

	initial := mustOrder(t, "order-1", "customer-1",
		mustItem(t, "item-a", 100, 2),
		mustItem(t, "item-b", 50, 1),
	)
	require.NoError(t, repo.Create(initial))

	// Сбой на второй строковой операции применения diff-а.
	writes := 0
	storeErr := errors.New("store connection lost")
	repo.SetWriteHook(func(op, id string) error {
		if op == writeOpHeader {
			return nil
		}
		writes++
		if writes == 2 {
			return storeErr
		}
		return nil
	})

	changed := mustOrder(t, "order-1", "customer-2",
		mustItem(t, "item-a", 100, 3),
		mustItem(t, "item-c", 20, 5),
		mustItem(t, "item-d", 5, 1),
	)
	require.ErrorIs(t, repo.Update(changed), storeErr)

	// Последующий Find видит состояние до update без изменений.
	repo.SetWriteHook(nil)
	found, err := repo.Find("order-1")
	require.NoError(t, err)
	require.Equal(t, "customer-1", found.CustomerID())
	require.Equal(t, []string{"item-a", "item-b"}, itemIDs(found))
	require.InDelta(t, initial.Total(), found.Total(), 1e-9)
}

func TestOrderRepository_FindAllEmptyStore(t *testing.T) {
	repo := NewOrderRepository()

	orders, err := repo.FindAll()
	require.NoError(t, err)
	require.Empty(t, orders)
}

func TestOrderRepository_FindAllCreationOrder(t *testing.T) {
	repo := NewOrderRepository()

	first := mustOrder(t, "order-2", "customer-1", mustItem(t, "item-a", 10, 1))
	second := mustOrder(t, "order-1", "customer-2", mustItem(t, "item-b", 20, 2))
	require.NoError(t, repo.Create(first))
	require.NoError(t, repo.Create(second))

	orders, err := repo.FindAll()
	require.NoError(t, err)
	require.Len(t, orders, 2)
	require.Equal(t, "order-2", orders[0].ID())
	require.Equal(t, "order-1", orders[1].ID())
}
