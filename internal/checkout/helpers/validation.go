package helpers

import (
	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/marketledger-backend/pkg/db/models"
	"github.com/angelmondragon/marketledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketledger-backend/pkg/errors"
	"github.com/angelmondragon/marketledger-backend/pkg/types"
)

// ValidateLines rejects empty carts, missing product ids and non-positive
// quantities.
func ValidateLines(lines []Line) error {
	if len(lines) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required")
	}
	for i, line := range lines {
		if line.ProductID == uuid.Nil {
			return pkgerrors.Newf(pkgerrors.CodeValidation, "items[%d]: product id required", i)
		}
		if line.Quantity <= 0 {
			return pkgerrors.Newf(pkgerrors.CodeValidation, "items[%d]: quantity must be positive", i).
				WithDetails(map[string]any{"productId": line.ProductID.String(), "quantity": line.Quantity})
		}
	}
	return nil
}

// ValidatePaymentMethod ensures the method is one the marketplace accepts.
func ValidatePaymentMethod(method enums.PaymentMethod) error {
	if !method.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method").
			WithDetails(map[string]any{"paymentMethod": method})
	}
	return nil
}

// ValidateProducts checks every line resolves to an active product with
// enough stock, in line order. The first missing product wins over any
// stock problem.
func ValidateProducts(lines []Line, products map[uuid.UUID]models.Product) error {
	for _, line := range lines {
		product, ok := products[line.ProductID]
		if !ok || !product.IsActive {
			return pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
				WithDetails(map[string]any{"productId": line.ProductID.String()})
		}
	}
	for _, line := range lines {
		product := products[line.ProductID]
		if product.StockQuantity < line.Quantity {
			return InsufficientStock(product, line.Quantity)
		}
	}
	return nil
}

// InsufficientStock describes a line the catalogue cannot cover.
func InsufficientStock(product models.Product, requested int) error {
	return pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock").
		WithDetails(map[string]any{
			"productId": product.ID.String(),
			"sku":       product.SKU,
			"name":      product.Name,
			"available": product.StockQuantity,
			"requested": requested,
		})
}

// ValidateAddress checks an optional address; nil passes. field names the
// address in the error ("shipping_address").
func ValidateAddress(field string, addr *types.Address) error {
	if addr == nil {
		return nil
	}
	err := addr.Validate()
	if err == nil {
		return nil
	}
	problems := make([]string, 0, 4)
	for _, e := range multierr.Errors(err) {
		problems = append(problems, e.Error())
	}
	return pkgerrors.Newf(pkgerrors.CodeValidation, "invalid %s", field).
		WithDetails(map[string]any{field: problems})
}
