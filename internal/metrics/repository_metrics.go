package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Действия синхронизации позиций для метрики item sync.
const (
	ItemSyncInserted = "inserted"
	ItemSyncUpdated  = "updated"
	ItemSyncDeleted  = "deleted"
)

// RepositoryMetrics содержит метрики операций репозитория заказов.
type RepositoryMetrics struct {
	// Счётчик операций с результатом ok/error
	operations *prometheus.CounterVec

	// Гистограмма времени выполнения операций
	operationDuration *prometheus.HistogramVec

	// Счётчик строковых операций diff-синхронизации позиций
	itemSync *prometheus.CounterVec
}

// NewRepositoryMetrics создаёт метрики репозитория в default registry.
// Повторная регистрация безопасна: возвращаются уже существующие коллекторы.
func NewRepositoryMetrics() *RepositoryMetrics {
	return newRepositoryMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newRepositoryMetricsWithRegisterer(registerer prometheus.Registerer) *RepositoryMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &RepositoryMetrics{
		operations: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "orders_repository_operations_total",
			Help: "Total number of order repository operations grouped by result",
		}, []string{"op", "result"}),
		operationDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "orders_repository_operation_duration_seconds",
			Help:    "Duration of order repository operations in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
		}, []string{"op"}),
		itemSync: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "orders_repository_item_sync_total",
			Help: "Total number of item rows inserted, updated and deleted by update-diff",
		}, []string{"action"}),
	}
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}

// ObserveOperation фиксирует результат и длительность одной операции репозитория.
func (m *RepositoryMetrics) ObserveOperation(op string, duration time.Duration, err error) {
	if m == nil {
		return
	}

	result := "ok"
	if err != nil {
		result = "error"
	}
	m.operations.WithLabelValues(op, result).Inc()
	m.operationDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// AddItemSync увеличивает счётчик строковых операций diff-а на count.
func (m *RepositoryMetrics) AddItemSync(action string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.itemSync.WithLabelValues(action).Add(float64(count))
}
