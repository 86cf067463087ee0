package jobs

import (
	"encoding/json"
	"time"
)

const (
	TopicPaymentTimeout   = "orders.jobs.payment-timeout"
	TopicCarrierDispatch  = "orders.jobs.carrier-dispatch"
	TopicPaymentConfirmed = "payments.payment-confirmed"
)

const (
	TypePaymentTimeout   = "PaymentTimeout"
	TypeCarrierDispatch  = "CarrierDispatch"
	TypePaymentConfirmed = "PaymentConfirmed"
)

// Envelope wraps every queued job. RunAt carries the enqueue delay; a
// consumer must not execute the job before it.
type Envelope struct {
	JobID      string          `json:"job_id"`
	JobType    string          `json:"job_type"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	RunAt      time.Time       `json:"run_at"`
	Producer   string          `json:"producer"`
	Payload    json.RawMessage `json:"payload"`
}

type PaymentTimeoutPayload struct {
	PaymentID string `json:"payment_id"`
}

type CarrierDispatchPayload struct {
	OrderID string `json:"order_id"`
}

type PaymentConfirmedPayload struct {
	PaymentID  string `json:"payment_id"`
	PaymentRef string `json:"payment_ref,omitempty"`
}

func topicFor(jobType string) (string, bool) {
	switch jobType {
	case TypePaymentTimeout:
		return TopicPaymentTimeout, true
	case TypeCarrierDispatch:
		return TopicCarrierDispatch, true
	case TypePaymentConfirmed:
		return TopicPaymentConfirmed, true
	}
	return "", false
}

// Partition key = job id, so redeliveries of one job stay ordered.
func PartitionKey(id string) []byte { return []byte(id) }
