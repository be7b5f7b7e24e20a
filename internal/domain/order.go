package domain

// OrderItem представляет одну позицию заказа.
// Все поля, кроме идентификатора, заменяются только целиком (через UpdateItem);
// частичная мутация полей не предусмотрена.
type OrderItem struct {
	id        string
	name      string
	price     float64
	productID string
	quantity  int
}

// NewOrderItem создаёт позицию заказа и сразу проверяет инварианты.
// Невалидная позиция не может существовать: конструктор возвращает ошибку
// конкретного нарушенного правила.
func NewOrderItem(id, name string, price float64, productID string, quantity int) (OrderItem, error) {
	item := OrderItem{
		id:        id,
		name:      name,
		price:     price,
		productID: productID,
		quantity:  quantity,
	}
	if err := item.validate(); err != nil {
		return OrderItem{}, err
	}
	return item, nil
}

func (i OrderItem) validate() error {
	if i.id == "" {
		return ErrItemIDRequired
	}
	if i.name == "" {
		return ErrItemNameRequired
	}
	if i.price < 0 {
		return ErrItemPriceInvalid
	}
	if i.quantity <= 0 {
		return ErrItemQtyInvalid
	}
	return nil
}

// ID возвращает идентификатор позиции; он неизменен в течение её жизни.
func (i OrderItem) ID() string { return i.id }

// Name возвращает название позиции.
func (i OrderItem) Name() string { return i.name }

// Price возвращает цену за единицу.
func (i OrderItem) Price() float64 { return i.price }

// ProductID возвращает идентификатор товара.
func (i OrderItem) ProductID() string { return i.productID }

// Quantity возвращает количество единиц.
func (i OrderItem) Quantity() int { return i.quantity }

// Total возвращает стоимость позиции: цена * количество.
func (i OrderItem) Total() float64 {
	return i.price * float64(i.quantity)
}

// Order — корень агрегата. Владеет коллекцией позиций эксклюзивно:
// наружу отдаются только копии, все изменения проходят через методы агрегата.
type Order struct {
	id         string
	customerID string
	items      []OrderItem
}

// NewOrder создаёт заказ и проверяет инварианты агрегата.
// Используется и прикладным кодом, и репозиторием при восстановлении из строк:
// повреждённый набор строк проявится здесь как ошибка валидации.
func NewOrder(id, customerID string, items []OrderItem) (*Order, error) {
	order := &Order{
		id:         id,
		customerID: customerID,
		items:      append([]OrderItem(nil), items...),
	}
	if err := order.Validate(); err != nil {
		return nil, err
	}
	return order, nil
}

// ID возвращает идентификатор заказа; после создания он не меняется.
func (o *Order) ID() string { return o.id }

// CustomerID возвращает текущий идентификатор клиента.
func (o *Order) CustomerID() string { return o.customerID }

// Items возвращает копию коллекции позиций.
func (o *Order) Items() []OrderItem {
	return append([]OrderItem(nil), o.items...)
}

// ChangeCustomerID безусловно заменяет идентификатор клиента.
// Повторная валидация не выполняется: вызывающая сторона обязана вызвать
// Validate перед сохранением.
func (o *Order) ChangeCustomerID(customerID string) {
	o.customerID = customerID
}

// UpdateItem целиком заменяет позицию с совпадающим идентификатором.
// Возвращает ErrItemNotFound, если такой позиции в заказе нет;
// коллекция при этом не меняется.
func (o *Order) UpdateItem(item OrderItem) error {
	for idx := range o.items {
		if o.items[idx].id == item.id {
			o.items[idx] = item
			return nil
		}
	}
	return ErrItemNotFound
}

// RemoveItem удаляет все позиции с данным идентификатором.
// Отсутствие позиции не ошибка: семантика фильтра, не утверждения.
// Валидация не перезапускается, поэтому заказ может временно остаться пустым.
func (o *Order) RemoveItem(id string) {
	filtered := o.items[:0]
	for _, item := range o.items {
		if item.id != id {
			filtered = append(filtered, item)
		}
	}
	o.items = filtered
}

// AddNewItem добавляет позицию в конец коллекции.
// Уникальность идентификатора не проверяется — это ответственность вызывающего.
func (o *Order) AddNewItem(item OrderItem) {
	o.items = append(o.items, item)
}

// Validate перепроверяет все инварианты агрегата по требованию.
// Автоматически вызывается только при создании; после мутаций — нет.
func (o *Order) Validate() error {
	if o.id == "" {
		return ErrOrderIDRequired
	}
	if o.customerID == "" {
		return ErrCustomerIDRequired
	}
	if len(o.items) == 0 {
		return ErrItemsRequired
	}
	for _, item := range o.items {
		if item.quantity <= 0 {
			return ErrItemQtyInvalid
		}
	}
	return nil
}

// Total возвращает сумму стоимостей всех позиций. Побочных эффектов нет.
func (o *Order) Total() float64 {
	var total float64
	for _, item := range o.items {
		total += item.Total()
	}
	return total
}
