package events

const (
	ExchangeStore         = "store_events"
	ExchangeBilling       = "billing_events"
	ExchangeLibrary       = "library_events"
	ExchangeOrders        = "orders_events"
	ExchangeNotifications = "notifications_events"
)

const (
	KeyOrderCreated         = "order.created"
	KeyOrdersCreated        = "orders.created"
	KeyOrdersUpdated        = "orders.updated"
	KeyOrdersCompleted      = "orders.completed"
	KeyUserCreated          = "user.created"
	KeyNotificationsCreated = "notifications.created"
)

// Route is an exchange plus routing key. On Kafka both collapse into one topic.
type Route struct {
	Exchange   string
	RoutingKey string
}

func (r Route) Topic() string { return r.Exchange + "." + r.RoutingKey }

func (r Route) String() string { return r.Exchange + "/" + r.RoutingKey }

var (
	StoreOrderCreated     = Route{ExchangeStore, KeyOrderCreated}
	StoreOrderUpdated     = Route{ExchangeStore, KeyOrdersUpdated}
	BillingOrderCreated   = Route{ExchangeBilling, KeyOrdersCreated}
	BillingOrderUpdated   = Route{ExchangeBilling, KeyOrdersUpdated}
	BillingUserCreated    = Route{ExchangeBilling, KeyUserCreated}
	LibraryOrderCreated   = Route{ExchangeLibrary, KeyOrdersCreated}
	LibraryOrderCompleted = Route{ExchangeLibrary, KeyOrdersCompleted}
	OrdersOrderUpdated    = Route{ExchangeOrders, KeyOrdersUpdated}
	NotificationsCreated  = Route{ExchangeNotifications, KeyNotificationsCreated}
)

// Binding attaches a durable queue to a route. A queue maps to a Kafka consumer group.
type Binding struct {
	Queue string
	Route Route
}

var (
	QueueStoreOrderCreated     = Binding{"store_order_created", StoreOrderCreated}
	QueueStoreOrderUpdated     = Binding{"store_order_updated", StoreOrderUpdated}
	QueueBillingOrderCreated   = Binding{"billing_order_created", BillingOrderCreated}
	QueueBillingOrderUpdated   = Binding{"billing_order_updated", BillingOrderUpdated}
	QueueBillingUserCreated    = Binding{"billing_user_created", BillingUserCreated}
	QueueLibraryOrderCreated   = Binding{"library_order_created", LibraryOrderCreated}
	QueueLibraryOrderCompleted = Binding{"library_order_completed", LibraryOrderCompleted}
	QueueOrdersOrderUpdated    = Binding{"orders_order_updated", OrdersOrderUpdated}
)

// Bindings is the full consumer topology.
func Bindings() []Binding {
	return []Binding{
		QueueStoreOrderCreated,
		QueueStoreOrderUpdated,
		QueueBillingOrderCreated,
		QueueBillingOrderUpdated,
		QueueBillingUserCreated,
		QueueLibraryOrderCreated,
		QueueLibraryOrderCompleted,
		QueueOrdersOrderUpdated,
	}
}
