// Package delivery composes and hands off the documents sent to companies.
package delivery

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNoRecipient is returned when the company has no e-mail on file.
var ErrNoRecipient = errors.New("delivery: company has no e-mail address")

// Kind identifies the document being delivered.
type Kind string

const (
	KindReport        Kind = "report"
	KindBillingNotice Kind = "billing_notice"
	KindTaxInvoice    Kind = "tax_invoice"
)

// Valid reports whether k is a known document kind.
func (k Kind) Valid() bool {
	switch k {
	case KindReport, KindBillingNotice, KindTaxInvoice:
		return true
	default:
		return false
	}
}

// Envelope is a fully rendered outbound message. SendID is set when the
// message belongs to a tracked document send rather than a closure step.
type Envelope struct {
	Kind      Kind   `json:"kind"`
	ClosureID int64  `json:"closure_id"`
	SendID    int64  `json:"send_id,omitempty"`
	CompanyID int64  `json:"company_id"`
	Recipient string `json:"recipient"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
}

// Deliverer hands an envelope to a transport.
type Deliverer interface {
	Deliver(ctx context.Context, env Envelope) error
}

// DelivererFunc adapts a function to Deliverer.
type DelivererFunc func(ctx context.Context, env Envelope) error

func (f DelivererFunc) Deliver(ctx context.Context, env Envelope) error {
	return f(ctx, env)
}

// Summary carries the closure facts templates can reference.
type Summary struct {
	ClosureID   int64
	SendID      int64
	CompanyID   int64
	CompanyName string
	Responsible string
	Email       string
	Month       int
	Year        int
	TotalMeals  int
	TotalValue  decimal.Decimal
	ClosedOn    time.Time
}
