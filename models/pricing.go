package models

import "math"

const (
	// TaxRate is the flat sales tax applied to the subtotal.
	TaxRate = 0.08
	// DeliveryFeeCents is the flat delivery fee.
	DeliveryFeeCents int64 = 299

	// MaxItemQuantity and MaxUnitPrice bound a single order line.
	MaxItemQuantity = 1000
	MaxUnitPrice    = 10000.0
	// MaxAmountCents is the largest amount a numeric(10,2) column holds.
	MaxAmountCents int64 = 9_999_999_999
)

// Totals are the derived money fields of an order, in dollars rounded to cents.
type Totals struct {
	Subtotal    float64
	TaxAmount   float64
	DeliveryFee float64
	TotalAmount float64
}

// ComputeTotals prices items. Arithmetic is done in whole cents so that
// TotalAmount is exactly Subtotal + TaxAmount + DeliveryFee. Items must pass
// WithinLimits first.
func ComputeTotals(items []OrderItem) Totals {
	var subtotal int64
	for _, it := range items {
		subtotal += toCents(it.UnitPrice) * int64(it.Quantity)
	}
	tax := int64(math.Round(float64(subtotal) * TaxRate))
	return Totals{
		Subtotal:    fromCents(subtotal),
		TaxAmount:   fromCents(tax),
		DeliveryFee: fromCents(DeliveryFeeCents),
		TotalAmount: fromCents(subtotal + tax + DeliveryFeeCents),
	}
}

// WithinLimits reports whether every line is within the per-line bounds and
// the order total fits the money columns.
func WithinLimits(items []OrderItem) bool {
	var subtotal int64
	for _, it := range items {
		if it.Quantity < 0 || it.Quantity > MaxItemQuantity || it.UnitPrice < 0 || it.UnitPrice > MaxUnitPrice {
			return false
		}
		subtotal += toCents(it.UnitPrice) * int64(it.Quantity)
		if subtotal > MaxAmountCents {
			return false
		}
	}
	tax := int64(math.Round(float64(subtotal) * TaxRate))
	return subtotal+tax+DeliveryFeeCents <= MaxAmountCents
}

// Apply copies the totals onto an order.
func (t Totals) Apply(o *Order) {
	o.Subtotal = t.Subtotal
	o.TaxAmount = t.TaxAmount
	o.DeliveryFee = t.DeliveryFee
	o.TotalAmount = t.TotalAmount
}

func toCents(dollars float64) int64 {
	return int64(math.Round(dollars * 100))
}

func fromCents(cents int64) float64 {
	return float64(cents) / 100
}
