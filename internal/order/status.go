package order

type Status string

const (
	StatusPendingPayment   Status = "PENDING_PAYMENT"
	StatusVerifyPayment    Status = "VERIFY_PAYMENT"
	StatusPendingPackaging Status = "PENDING_PACKAGING"
	StatusPickuped         Status = "PICKUPED"
	StatusPendingDelivery  Status = "PENDING_DELIVERY"
	StatusDelivered        Status = "DELIVERED"
	StatusCancelled        Status = "CANCELLED"
	StatusReturned         Status = "RETURNED"
)

var validNext = map[Status]map[Status]bool{
	StatusPendingPayment:   {StatusVerifyPayment: true, StatusCancelled: true},
	StatusVerifyPayment:    {StatusPendingPackaging: true},
	StatusPendingPackaging: {StatusPickuped: true, StatusCancelled: true},
	StatusPickuped:         {StatusPendingDelivery: true, StatusCancelled: true},
	StatusPendingDelivery:  {StatusDelivered: true, StatusCancelled: true},
	StatusDelivered:        {StatusReturned: true},
	StatusCancelled:        {},
	StatusReturned:         {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

// Cancellable reports whether the buyer may still cancel from this status.
func Cancellable(s Status) bool {
	return CanTransition(s, StatusCancelled)
}

// InitialStatus for a freshly created order. COD orders skip straight to
// packaging: payment is collected by the carrier on delivery.
func InitialStatus(isCOD bool) Status {
	if isCOD {
		return StatusPendingPackaging
	}
	return StatusPendingPayment
}
