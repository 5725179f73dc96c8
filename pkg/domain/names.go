package domain

// Sources. Each one is also the Kafka topic its events are published on.
const (
	SourceBasket         = "basket_service"
	SourceOrders         = "command_orders"
	SourceInventoryItems = "command_item"
	SourceSites          = "command_site"
	SourcePayments       = "command_payments"
	SourceProducts       = "command_products"
)

// Subscribers. Each one is a Kafka consumer group.
const (
	SubscriberOrders    = "command_orders"
	SubscriberOrdersQry = "query_orders"
	SubscriberInventory = "command_item"
	SubscriberItemsQry  = "query_inventory"
	SubscriberSitesQry  = "query_site"
	SubscriberPayments  = "command_payments"
	SubscriberProductsQ = "query_products"
)

const DeadLetterTopic = "dead_letter"

const (
	EventUserCheckoutAccepted = "user_checkout_accepted"
	EventOrderStarted         = "order_started"
	EventBuyerPaymentVerified = "buyer_payment_verified"
	EventShipOrder            = "ship_order"

	EventOrderSubmitted          = "order_status_changed_to_submitted"
	EventOrderAwaitingValidation = "order_status_changed_to_awaiting_validation"
	EventOrderStockConfirmed     = "order_status_changed_to_stock_confirmed"
	EventOrderPaid               = "order_status_changed_to_paid"
	EventOrderShipped            = "order_status_changed_to_shipped"
	EventOrderCancelled          = "order_status_changed_to_cancelled"

	EventConfirmedOrderStock = "confirmed_order_stock"
	EventRejectedOrderStock  = "rejected_order_stock"
	EventOrderStockDebited   = "order_stock_debited"

	EventPaymentSucceeded = "order_payment_succeeded"
	EventPaymentFailed    = "order_payment_failed"

	EventProductAdded = "product_added"

	EventReplicateDB = "replicate_db_event"
)
