package events

import "github.com/asaskevich/EventBus"

// Order lifecycle topics published by the orders service.
const (
	TopicOrderCreated   = "order.created"
	TopicOrderCancelled = "order.cancelled"
	TopicOrderStatus    = "order.status"
)

// OrderEvent is the payload carried on all order topics.
type OrderEvent struct {
	OrderID     int64
	OrderNumber string
	CustomerID  int64
	Status      string
	Total       int64
}

// NewBus returns a process-local event bus. Subscribers run
// synchronously unless they register with SubscribeAsync.
func NewBus() EventBus.Bus {
	return EventBus.New()
}
