package orders

import (
	"fmt"
	"strings"

	"github.com/comercia-app/comercia/internal/catalog/products"
)

// ViolationKind classifies why a line item cannot be fulfilled.
type ViolationKind string

const (
	ViolationProductNotFound   ViolationKind = "product_not_found"
	ViolationInsufficientStock ViolationKind = "insufficient_stock"
)

// Violation describes one unfulfillable line item.
type Violation struct {
	Kind        ViolationKind `json:"kind"`
	ProductID   int64         `json:"product_id,omitempty"`
	ProductName string        `json:"product_name,omitempty"`
	Available   int64         `json:"available,omitempty"`
	Requested   int64         `json:"requested,omitempty"`
}

// Message renders a human-readable explanation.
func (v Violation) Message() string {
	switch v.Kind {
	case ViolationProductNotFound:
		return fmt.Sprintf("product %d not found", v.ProductID)
	case ViolationInsufficientStock:
		return fmt.Sprintf("insufficient stock for %s: available %d, requested %d", v.ProductName, v.Available, v.Requested)
	}
	return string(v.Kind)
}

// ValidateStock checks grouped lines against current stock levels and
// returns every violation found, not just the first. It never mutates
// stock; an empty result means the order may proceed.
func ValidateStock(lines []OrderLine, stock map[int64]products.Product) []Violation {
	var violations []Violation
	for _, line := range lines {
		product, ok := stock[line.ProductID]
		if !ok {
			violations = append(violations, Violation{
				Kind:      ViolationProductNotFound,
				ProductID: line.ProductID,
			})
			continue
		}
		if product.Stock < line.Quantity {
			violations = append(violations, Violation{
				Kind:        ViolationInsufficientStock,
				ProductID:   line.ProductID,
				ProductName: product.Name,
				Available:   product.Stock,
				Requested:   line.Quantity,
			})
		}
	}
	return violations
}

// ConfirmError carries the full violation list for a failed confirmation.
type ConfirmError struct {
	Violations []Violation
}

func (e *ConfirmError) Error() string {
	msgs := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		msgs = append(msgs, v.Message())
	}
	return "order cannot be confirmed: " + strings.Join(msgs, "; ")
}
