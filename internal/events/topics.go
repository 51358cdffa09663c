package events

// Task types published to the background queue.
const (
	TypePurchaseSettled = "purchase.settled"
)

// QueueDefault is the asynq queue settlement notifications go to.
const QueueDefault = "default"
