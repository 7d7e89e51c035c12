package wizard

// Step задаёт порядковый номер шага мастера оформления заказа.
type Step int

const (
	StepCustomer Step = iota
	StepServices
	StepDetails
	StepSummary
	StepPayment
	StepConfirmation
)

var stepNames = [...]string{
	StepCustomer:     "customer",
	StepServices:     "services",
	StepDetails:      "details",
	StepSummary:      "summary",
	StepPayment:      "payment",
	StepConfirmation: "confirmation",
}

func (s Step) String() string {
	if s < StepCustomer || s > StepConfirmation {
		return "unknown"
	}
	return stepNames[s]
}
