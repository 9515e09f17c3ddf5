package events

// Topic constants for domain events emitted by the point of sale.
const (
	TopicSaleCreated    = "sale.created"
	TopicRefundIssued   = "refund.issued"
	TopicOrderCreated   = "order.created"
	TopicOrderUpdated   = "order.updated"
	TopicOrderCompleted = "order.completed"
	TopicOrderCancelled = "order.cancelled"
	TopicStockAdjusted  = "stock.adjusted"
)

// DefaultTopics returns the canonical list of topics.
func DefaultTopics() []string {
	return []string{
		TopicSaleCreated,
		TopicRefundIssued,
		TopicOrderCreated,
		TopicOrderUpdated,
		TopicOrderCompleted,
		TopicOrderCancelled,
		TopicStockAdjusted,
	}
}
