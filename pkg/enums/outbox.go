package enums

// OutboxEventType enumerates domain events appended to the outbox.
type OutboxEventType string

const (
	EventOrderCreated          OutboxEventType = "order.created"
	EventOrderPaymentCompleted OutboxEventType = "order.payment_completed"
	EventOrderAssigned         OutboxEventType = "order.assigned"
	EventOrderStatusChanged    OutboxEventType = "order.status_changed"
	EventOrderCancelled        OutboxEventType = "order.cancelled"
	EventPaymentFailed         OutboxEventType = "payment.failed"
	EventRentalCreated         OutboxEventType = "rental.created"
	EventRentalPaused          OutboxEventType = "rental.paused"
	EventRentalResumed         OutboxEventType = "rental.resumed"
	EventRentalTerminated      OutboxEventType = "rental.terminated"
	EventRentalRenewed         OutboxEventType = "rental.renewed"
	EventRentalExpired         OutboxEventType = "rental.expired"
	EventNotificationRequested OutboxEventType = "notification.requested"
	EventTerritoryReassign     OutboxEventType = "territory.reassign_requested"
)

// OutboxAggregateType names the aggregate an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateOrder        OutboxAggregateType = "order"
	AggregatePayment      OutboxAggregateType = "payment"
	AggregateRental       OutboxAggregateType = "rental"
	AggregateTerritory    OutboxAggregateType = "territory"
	AggregateNotification OutboxAggregateType = "notification"
)
