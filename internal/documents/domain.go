// Package documents tracks the three documents sent for every closure.
package documents

import (
	"fmt"
	"strings"
	"time"

	"github.com/marmitas/backoffice/internal/closing"
	"github.com/marmitas/backoffice/internal/delivery"
	"github.com/marmitas/backoffice/internal/shared"
)

// Kinds lists the documents created for each closure, in display order.
var Kinds = []delivery.Kind{delivery.KindReport, delivery.KindBillingNotice, delivery.KindTaxInvoice}

// SendStatus is the state of a single document send.
type SendStatus string

const (
	SendPending SendStatus = "pending"
	SendSent    SendStatus = "sent"
	SendError   SendStatus = "error"
)

// ParseSendStatus accepts a send status, or "" and "all" for no filter.
func ParseSendStatus(raw string) (SendStatus, error) {
	switch s := SendStatus(strings.ToLower(strings.TrimSpace(raw))); s {
	case "", "all":
		return "", nil
	case SendPending, SendSent, SendError:
		return s, nil
	default:
		return "", fmt.Errorf("%w: status must be one of pending, sent, error", shared.ErrValidation)
	}
}

// Aggregate is the overall label of a closure's sends.
type Aggregate string

const (
	AggregatePending  Aggregate = "pending"
	AggregateError    Aggregate = "erro"
	AggregatePartial  Aggregate = "parcial"
	AggregateComplete Aggregate = "completo"
)

// Send is one document delivery tracked for a closure.
type Send struct {
	ID        int64         `json:"id"`
	ClosureID int64         `json:"closure_id"`
	Kind      delivery.Kind `json:"kind"`
	Status    SendStatus    `json:"status"`
	Retries   int           `json:"retries"`
	LastError string        `json:"last_error,omitempty"`
	SentAt    *time.Time    `json:"sent_at,omitempty"`
	Notes     string        `json:"notes"`
}

// AggregateStatus derives the overall label. A missing send wins over
// everything, then any error, then any pending send.
func AggregateStatus(report, billing, invoice *Send) Aggregate {
	if report == nil || billing == nil || invoice == nil {
		return AggregatePending
	}
	sends := [3]*Send{report, billing, invoice}
	for _, s := range sends {
		if s.Status == SendError {
			return AggregateError
		}
	}
	for _, s := range sends {
		if s.Status == SendPending {
			return AggregatePartial
		}
	}
	return AggregateComplete
}

// Group is a closure together with its three sends.
type Group struct {
	Closure   closing.Closure `json:"closure"`
	Report    *Send           `json:"report,omitempty"`
	Billing   *Send           `json:"billing_notice,omitempty"`
	Invoice   *Send           `json:"tax_invoice,omitempty"`
	Aggregate Aggregate       `json:"aggregate"`
	Notes     string          `json:"notes"`
}

func newGroup(c closing.Closure, sends []Send) Group {
	g := Group{Closure: c}
	for i := range sends {
		s := &sends[i]
		switch s.Kind {
		case delivery.KindReport:
			g.Report = s
		case delivery.KindBillingNotice:
			g.Billing = s
		case delivery.KindTaxInvoice:
			g.Invoice = s
		}
	}
	g.Aggregate = AggregateStatus(g.Report, g.Billing, g.Invoice)
	for _, s := range []*Send{g.Report, g.Billing, g.Invoice} {
		if s != nil && s.Notes != "" {
			g.Notes = s.Notes
			break
		}
	}
	return g
}

// keepOnly drops the sends whose status differs from status.
func (g Group) keepOnly(status SendStatus) (Group, bool) {
	if status == "" {
		return g, true
	}
	match := func(s *Send) *Send {
		if s != nil && s.Status == status {
			return s
		}
		return nil
	}
	g.Report, g.Billing, g.Invoice = match(g.Report), match(g.Billing), match(g.Invoice)
	return g, g.Report != nil || g.Billing != nil || g.Invoice != nil
}

// Stats counts groups per aggregate label.
type Stats struct {
	Total    int `json:"total"`
	Complete int `json:"complete"`
	Partial  int `json:"partial"`
	Error    int `json:"error"`
	Pending  int `json:"pending"`
}

// Summarize counts groups per aggregate label.
func Summarize(groups []Group) Stats {
	var st Stats
	for _, g := range groups {
		st.Total++
		switch g.Aggregate {
		case AggregateComplete:
			st.Complete++
		case AggregatePartial:
			st.Partial++
		case AggregateError:
			st.Error++
		default:
			st.Pending++
		}
	}
	return st
}

// Overview is the documents screen for one month.
type Overview struct {
	Month  int     `json:"month"`
	Year   int     `json:"year"`
	Groups []Group `json:"groups"`
	Stats  Stats   `json:"stats"`
}
