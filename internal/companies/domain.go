// Package companies manages the client companies that order meals.
package companies

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentMethod is how a company settles its monthly closure.
type PaymentMethod string

const (
	PaymentBoleto        PaymentMethod = "boleto"
	PaymentPix           PaymentMethod = "pix"
	PaymentTransferencia PaymentMethod = "transferencia"
)

// Company represents a client company.
type Company struct {
	ID              int64           `json:"id"`
	Name            string          `json:"name"`
	TaxID           string          `json:"tax_id"`
	Address         string          `json:"address"`
	Responsible     string          `json:"responsible"`
	Contact         string          `json:"contact"`
	Email           string          `json:"email"`
	PaymentMethod   PaymentMethod   `json:"payment_method"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	Active          bool            `json:"active"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Input carries the editable company fields.
type Input struct {
	Name            string          `json:"name" validate:"required,max=200"`
	TaxID           string          `json:"tax_id" validate:"max=32"`
	Address         string          `json:"address"`
	Responsible     string          `json:"responsible" validate:"required"`
	Contact         string          `json:"contact"`
	Email           string          `json:"email" validate:"omitempty,email"`
	PaymentMethod   PaymentMethod   `json:"payment_method" validate:"required,oneof=boleto pix transferencia"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	Active          *bool           `json:"active,omitempty"`
}

// StatusFilter narrows listings by the active flag.
type StatusFilter string

const (
	StatusAll      StatusFilter = "all"
	StatusActive   StatusFilter = "active"
	StatusInactive StatusFilter = "inactive"
)

// Filter narrows List results.
type Filter struct {
	Search string
	Status StatusFilter
}

// DeleteResult reports whether a delete fell back to deactivation.
type DeleteResult struct {
	Deleted     bool `json:"deleted"`
	Deactivated bool `json:"deactivated"`
}
