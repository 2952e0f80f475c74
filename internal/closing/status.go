package closing

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned when an event is not allowed from the current status.
var ErrInvalidTransition = errors.New("closing: invalid status transition")

// Status is the coarse lifecycle of a monthly closure.
type Status string

const (
	StatusPending        Status = "pending"
	StatusReportSent     Status = "report_sent"
	StatusInvoicePending Status = "invoice_pending"
	StatusInvoiceSent    Status = "invoice_sent"
	StatusPaymentPending Status = "payment_pending"
	StatusCompleted      Status = "completed"
	StatusErrorReport    Status = "error_report"
	StatusErrorInvoice   Status = "error_invoice"
	StatusErrorPayment   Status = "error_payment"
)

// Statuses lists every status in stage order.
var Statuses = []Status{
	StatusPending, StatusReportSent, StatusInvoicePending, StatusInvoiceSent,
	StatusPaymentPending, StatusCompleted, StatusErrorReport, StatusErrorInvoice, StatusErrorPayment,
}

// Stage returns the 1-based progress position. Error statuses share the stage
// of the step that failed. Unknown statuses return 0.
func (s Status) Stage() int {
	switch s {
	case StatusPending, StatusErrorReport:
		return 1
	case StatusReportSent:
		return 2
	case StatusInvoicePending, StatusErrorInvoice:
		return 3
	case StatusInvoiceSent:
		return 4
	case StatusPaymentPending, StatusErrorPayment:
		return 5
	case StatusCompleted:
		return 6
	default:
		return 0
	}
}

// IsError reports whether s records a failed step.
func (s Status) IsError() bool {
	switch s {
	case StatusErrorReport, StatusErrorInvoice, StatusErrorPayment:
		return true
	default:
		return false
	}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s.Stage() > 0
}

// Event drives a status transition.
type Event string

const (
	EventReportSent       Event = "report_sent"
	EventReportFailed     Event = "report_failed"
	EventInvoiceQueued    Event = "invoice_queued"
	EventInvoiceSent      Event = "invoice_sent"
	EventInvoiceFailed    Event = "invoice_failed"
	EventPaymentConfirmed Event = "payment_confirmed"
	EventPaymentFailed    Event = "payment_failed"
	// Bounce events record a hand-off the mail worker later gave up on.
	EventReportBounced  Event = "report_bounced"
	EventInvoiceBounced Event = "invoice_bounced"
)

// Events lists every event.
var Events = []Event{
	EventReportSent, EventReportFailed, EventInvoiceQueued, EventInvoiceSent,
	EventInvoiceFailed, EventPaymentConfirmed, EventPaymentFailed,
	EventReportBounced, EventInvoiceBounced,
}

// Next returns the status reached by applying ev to from. No event enters
// StatusPaymentPending; it is kept so stage numbering stays complete.
func Next(from Status, ev Event) (Status, error) {
	switch ev {
	case EventReportSent, EventReportFailed:
		if from == StatusPending || from == StatusErrorReport {
			if ev == EventReportSent {
				return StatusReportSent, nil
			}
			return StatusErrorReport, nil
		}
	case EventInvoiceQueued:
		if from == StatusReportSent {
			return StatusInvoicePending, nil
		}
	case EventInvoiceSent, EventInvoiceFailed:
		if from == StatusReportSent || from == StatusInvoicePending || from == StatusErrorInvoice {
			if ev == EventInvoiceSent {
				return StatusInvoiceSent, nil
			}
			return StatusErrorInvoice, nil
		}
	case EventReportBounced:
		if from == StatusReportSent {
			return StatusErrorReport, nil
		}
	case EventInvoiceBounced:
		if from == StatusInvoiceSent {
			return StatusErrorInvoice, nil
		}
	case EventPaymentConfirmed, EventPaymentFailed:
		if from == StatusInvoiceSent || from == StatusErrorPayment {
			if ev == EventPaymentConfirmed {
				return StatusCompleted, nil
			}
			return StatusErrorPayment, nil
		}
	default:
		return "", fmt.Errorf("%w: unknown event %q", ErrInvalidTransition, ev)
	}
	return "", fmt.Errorf("%w: %s from %s", ErrInvalidTransition, ev, from)
}

// Action is an operator button on a closure row.
type Action string

const (
	ActionSendReport     Action = "send_report"
	ActionQueueInvoice   Action = "queue_invoice"
	ActionSendInvoice    Action = "send_invoice"
	ActionConfirmPayment Action = "confirm_payment"
)

var actionEvents = []struct {
	action Action
	event  Event
}{
	{ActionSendReport, EventReportSent},
	{ActionQueueInvoice, EventInvoiceQueued},
	{ActionSendInvoice, EventInvoiceSent},
	{ActionConfirmPayment, EventPaymentConfirmed},
}

// AvailableActions lists the actions an operator may trigger from s.
func AvailableActions(s Status) []Action {
	var out []Action
	for _, ae := range actionEvents {
		if _, err := Next(s, ae.event); err == nil {
			out = append(out, ae.action)
		}
	}
	return out
}
