package wizard

import (
	"github.com/mmeshcher/quickorder/internal/catalog"
	"github.com/mmeshcher/quickorder/internal/model"
	"github.com/mmeshcher/quickorder/internal/validation"
)

// State содержит снимок состояния мастера. Изменение снимка не влияет на мастер.
type State struct {
	Step               Step                     `json:"step"`
	StepName           string                   `json:"stepName"`
	Customer           *model.Customer          `json:"customer,omitempty"`
	CustomerConfirmed  bool                     `json:"customerConfirmed"`
	Selected           []model.Service          `json:"selectedServices"`
	Details            map[string]model.Details `json:"serviceDetails"`
	Completion         map[string]int           `json:"completion"`
	CanProceed         bool                     `json:"canProceed"`
	Meta               model.OrderMeta          `json:"orderMeta"`
	Draft              *model.OrderDraft        `json:"draftOrder,omitempty"`
	Order              *model.Order             `json:"order,omitempty"`
	PaymentError       string                   `json:"paymentError,omitempty"`
	PaymentClientError string                   `json:"paymentClientError,omitempty"`
	Loading            Loading                  `json:"loading"`
	Catalog            catalog.Metadata         `json:"catalog"`
}

// State возвращает снимок текущего состояния.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := State{
		Step:              c.step,
		StepName:          c.step.String(),
		CustomerConfirmed: c.customerConfirmed,
		Selected:          append([]model.Service{}, c.selected...),
		Details:           make(map[string]model.Details, len(c.details)),
		Completion:        make(map[string]int, len(c.selected)),
		CanProceed:        c.canProceedLocked(),
		Meta:              cloneMeta(c.orderMeta),
		Order:             cloneOrder(c.order),
		PaymentError:      c.paymentErr,
		Loading:           c.loading,
		Catalog:           c.catalogMeta,
	}
	if c.customer != nil {
		cust := *c.customer
		st.Customer = &cust
	}
	for id, d := range c.details {
		st.Details[id] = d.Clone()
	}
	for _, s := range c.selected {
		st.Completion[s.ID] = validation.Completion(s.Category, c.details[s.ID])
	}
	if c.draft != nil {
		draft := *c.draft
		draft.OrderMeta = cloneMeta(c.draft.OrderMeta)
		draft.Items = make([]model.DraftItem, len(c.draft.Items))
		for i, it := range c.draft.Items {
			it.Details = it.Details.Clone()
			draft.Items[i] = it
		}
		st.Draft = &draft
	}
	if c.paymentClientErr != nil {
		st.PaymentClientError = c.paymentClientErr.Error()
	}
	return st
}

// canProceedLocked повторяет условия перехода Next, не выполняя его.
func (c *Controller) canProceedLocked() bool {
	switch c.step {
	case StepCustomer:
		return c.customerConfirmed && !c.loading.Customer
	case StepServices:
		return len(c.selected) > 0
	case StepDetails:
		return len(c.selected) > 0 && c.detailsCompleteLocked() && !c.loading.Order
	case StepSummary:
		return c.order != nil || (c.draft != nil && !c.loading.Order)
	case StepPayment:
		return c.paidLocked()
	default:
		return false
	}
}

func cloneMeta(m model.OrderMeta) model.OrderMeta {
	if m.ScheduledDate != nil {
		d := *m.ScheduledDate
		m.ScheduledDate = &d
	}
	return m
}

func cloneOrder(o *model.Order) *model.Order {
	if o == nil {
		return nil
	}
	out := *o
	if o.Items != nil {
		out.Items = make([]model.OrderItem, len(o.Items))
		for i, it := range o.Items {
			it.Details = it.Details.Clone()
			out.Items[i] = it
		}
	}
	if o.ScheduledDate != nil {
		d := *o.ScheduledDate
		out.ScheduledDate = &d
	}
	return &out
}
