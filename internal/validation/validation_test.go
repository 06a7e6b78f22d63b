package validation

import (
	"errors"
	"testing"

	invoicedomain "github.com/smallbiznis/invoicecore/internal/invoice/domain"
	"github.com/stretchr/testify/require"
)

type sample struct {
	AmountCents int64  `validate:"gt=0"`
	Currency    string `json:"currency" validate:"omitempty,len=3"`
	InvoiceID   int64  `validate:"required"`
}

func TestStructReportsSnakeCaseField(t *testing.T) {
	err := Struct(New(), sample{AmountCents: 0, InvoiceID: 1})
	var verr *invoicedomain.ValidationError
	require.True(t, errors.As(err, &verr))
	require.Equal(t, "amount_cents", verr.Field)
	require.Equal(t, "must be greater than 0", verr.Reason)
	require.ErrorIs(t, err, invoicedomain.ErrValidation)

	err = Struct(New(), sample{AmountCents: 1, Currency: "US", InvoiceID: 1})
	require.True(t, errors.As(err, &verr))
	require.Equal(t, "currency", verr.Field)

	require.NoError(t, Struct(New(), sample{AmountCents: 1, InvoiceID: 1}))
}

func TestToSnake(t *testing.T) {
	require.Equal(t, "invoice_id", toSnake("InvoiceID"))
	require.Equal(t, "payment_method_token", toSnake("PaymentMethodToken"))
	require.Equal(t, "id", toSnake("ID"))
}
