package helpers

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketledger-backend/pkg/db/models"
	"github.com/angelmondragon/marketledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketledger-backend/pkg/errors"
	"github.com/angelmondragon/marketledger-backend/pkg/types"
)

func TestMergeLinesSumsDuplicates(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	merged := MergeLines([]Line{{a, 1}, {b, 2}, {a, 3}})
	require.Len(t, merged, 2)
	got := map[uuid.UUID]int{}
	for _, line := range merged {
		got[line.ProductID] = line.Quantity
	}
	require.Equal(t, 4, got[a])
	require.Equal(t, 2, got[b])
	require.True(t, merged[0].ProductID.String() < merged[1].ProductID.String())
}

func TestValidateLines(t *testing.T) {
	require.True(t, pkgerrors.IsCode(ValidateLines(nil), pkgerrors.CodeValidation))
	require.True(t, pkgerrors.IsCode(ValidateLines([]Line{{uuid.Nil, 1}}), pkgerrors.CodeValidation))
	require.True(t, pkgerrors.IsCode(ValidateLines([]Line{{uuid.New(), 0}}), pkgerrors.CodeValidation))
	require.NoError(t, ValidateLines([]Line{{uuid.New(), 1}}))
}

func TestValidatePaymentMethod(t *testing.T) {
	require.NoError(t, ValidatePaymentMethod(enums.PaymentMethodWallet))
	require.True(t, pkgerrors.IsCode(ValidatePaymentMethod("cheque"), pkgerrors.CodeValidation))
}

func TestValidateProducts(t *testing.T) {
	active := models.Product{ID: uuid.New(), SKU: "A-1", Name: "Lamp", StockQuantity: 2, IsActive: true}
	inactive := models.Product{ID: uuid.New(), StockQuantity: 5}
	products := map[uuid.UUID]models.Product{active.ID: active, inactive.ID: inactive}

	err := ValidateProducts([]Line{{active.ID, 3}, {inactive.ID, 1}}, products)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	err = ValidateProducts([]Line{{active.ID, 3}}, products)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock))
	details := pkgerrors.As(err).Details().(map[string]any)
	require.Equal(t, 2, details["available"])
	require.Equal(t, 3, details["requested"])
	require.Equal(t, "A-1", details["sku"])

	require.NoError(t, ValidateProducts([]Line{{active.ID, 2}}, products))
}

func TestVendorIDsDistinct(t *testing.T) {
	v1, v2 := uuid.New(), uuid.New()
	ids := VendorIDs([]models.OrderItem{{VendorID: v1}, {VendorID: v2}, {VendorID: v1}})
	require.Equal(t, []uuid.UUID{v1, v2}, ids)
}

func TestValidateAddress(t *testing.T) {
	require.NoError(t, ValidateAddress("shipping_address", nil))
	require.NoError(t, ValidateAddress("shipping_address", &types.Address{
		Line1: "1 Market St", City: "Austin", PostalCode: "78701", Country: "US",
	}))

	err := ValidateAddress("billing_address", &types.Address{City: "Austin", Country: "USA"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	require.Contains(t, err.Error(), "billing_address")
}
