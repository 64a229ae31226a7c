package order

// Status is the order lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
)

// PaymentStatus tracks payment independently of the lifecycle state.
type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "unpaid"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

// PaymentMethod selects the checkout branch.
type PaymentMethod string

const (
	// MethodCOD is pay-on-fulfillment: the order confirms immediately and is
	// settled at delivery, outside this system.
	MethodCOD PaymentMethod = "cod"
	// MethodGateway is the prepaid external gateway: the order stays pending
	// until a payment confirmation arrives.
	MethodGateway PaymentMethod = "sslcommerz"
)

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	return m == MethodCOD || m == MethodGateway
}

// statusTransitions is the authoritative state machine. The forward chain is
// pending → confirmed → processing → shipped → delivered; cancelled and
// refunded branch off every non-terminal state.
var statusTransitions = map[Status][]Status{
	StatusPending:    {StatusConfirmed, StatusProcessing, StatusCancelled, StatusRefunded},
	StatusConfirmed:  {StatusProcessing, StatusShipped, StatusCancelled, StatusRefunded},
	StatusProcessing: {StatusShipped, StatusDelivered, StatusCancelled, StatusRefunded},
	StatusShipped:    {StatusDelivered, StatusCancelled, StatusRefunded},
	StatusDelivered:  nil,
	StatusCancelled:  nil,
	StatusRefunded:   nil,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := statusTransitions[s]
	return ok
}

// Terminal reports whether no further transitions leave s.
func (s Status) Terminal() bool {
	next, ok := statusTransitions[s]
	return ok && len(next) == 0
}

// CanTransition reports whether the state machine permits moving from s to
// target. Terminal states permit nothing; a cancelled or refunded order can
// never resurrect to an active state.
func (s Status) CanTransition(target Status) bool {
	for _, next := range statusTransitions[s] {
		if next == target {
			return true
		}
	}
	return false
}
