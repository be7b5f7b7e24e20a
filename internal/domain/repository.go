package domain

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ: заголовок и все позиции атомарно.
	// Уникальность ID обеспечивает само хранилище; конфликт приходит как ошибка хранилища.
	Create(order *Order) error
	// Find восстанавливает заказ по идентификатору или возвращает ErrOrderNotFound.
	Find(id string) (*Order, error)
	// FindAll возвращает все заказы в порядке итерации хранилища.
	// Пустое хранилище — пустой срез, не ошибка.
	FindAll() ([]*Order, error)
	// Update синхронизирует сохранённые строки с текущим состоянием агрегата
	// одной транзакцией: заголовок перезаписывается, позиции сверяются по id
	// (удалить отсутствующие, вставить новые, перезаписать общие).
	// Возвращает ErrOrderNotFound, если заказ не был сохранён ранее.
	Update(order *Order) error
}
