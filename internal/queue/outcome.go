package queue

// Outcome is the result of one DrainOne call.
type Outcome int

const (
	// OutcomeIdle means the queue was empty.
	OutcomeIdle Outcome = iota
	OutcomeDelivered
	// OutcomeStale means the head was already in the ledger and was dropped.
	OutcomeStale
	// OutcomeRequeued means delivery failed and the article is back at the head.
	OutcomeRequeued
	// OutcomeSkipped means the publisher refused the article (no valid image
	// under the skip policy). It is not recorded and not retried.
	OutcomeSkipped
	// OutcomeUnrecorded means the article was sent but the ledger write failed.
	OutcomeUnrecorded
)

func (o Outcome) String() string {
	switch o {
	case OutcomeIdle:
		return "idle"
	case OutcomeDelivered:
		return "delivered"
	case OutcomeStale:
		return "stale"
	case OutcomeRequeued:
		return "requeued"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeUnrecorded:
		return "unrecorded"
	default:
		return "unknown"
	}
}

// Observer receives queue events, typically to update metrics.
type Observer interface {
	Fetched(n int)
	Queued(n int)
	Outcome(o Outcome)
	TranslationFallbacks(n int)
	QueueLength(n int)
}

type nopObserver struct{}

func (nopObserver) Fetched(int)              {}
func (nopObserver) Queued(int)               {}
func (nopObserver) Outcome(Outcome)          {}
func (nopObserver) TranslationFallbacks(int) {}
func (nopObserver) QueueLength(int)          {}
