package model

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCurrencyDecimals(t *testing.T) {
	assert.Equal(t, int32(0), CurrencyDecimals("JPY"))
	assert.Equal(t, int32(0), CurrencyDecimals("huf"))
	assert.Equal(t, int32(0), CurrencyDecimals("TWD"))
	assert.Equal(t, int32(2), CurrencyDecimals("USD"))
	assert.Equal(t, int32(2), CurrencyDecimals("EUR"))
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "10.50", FormatAmount(decimal.RequireFromString("10.5"), "USD"))
	assert.Equal(t, "1000", FormatAmount(decimal.RequireFromString("1000"), "JPY"))
	assert.Equal(t, "1001", FormatAmount(decimal.RequireFromString("1000.5"), "JPY"))
}

func TestTruncateAmount(t *testing.T) {
	assert.Equal(t, "114.99", TruncateAmount(decimal.RequireFromString("114.999"), "USD").StringFixed(2))
	assert.Equal(t, "1149", TruncateAmount(decimal.RequireFromString("1149.9"), "JPY").String())
}

func TestParseAmount(t *testing.T) {
	d, err := ParseAmount(" 12.34 ")
	require.NoError(t, err)
	assert.True(t, d.Equal(decimal.RequireFromString("12.34")))

	d, err = ParseAmount("")
	require.NoError(t, err)
	assert.True(t, d.IsZero())

	_, err = ParseAmount("12,34")
	assert.Error(t, err)
}

func TestAmountsEqual(t *testing.T) {
	assert.True(t, AmountsEqual(decimal.RequireFromString("100"), decimal.RequireFromString("99.999"), "USD"))
	assert.False(t, AmountsEqual(decimal.RequireFromString("100"), decimal.RequireFromString("99.99"), "USD"))
	assert.True(t, AmountsEqual(decimal.RequireFromString("100"), decimal.RequireFromString("100.4"), "JPY"))
}

func TestMapIssueCode(t *testing.T) {
	msg, known := MapIssueCode("INSTRUMENT_DECLINED")
	assert.True(t, known)
	assert.NotEmpty(t, msg)

	msg, known = MapIssueCode("SOMETHING_NEW")
	assert.False(t, known)
	assert.Equal(t, GenericGatewayMessage, msg)
}

func TestRequestValidation(t *testing.T) {
	assert.NoError(t, CaptureRequest{AuthorizationID: "A1", Remaining: true}.Validate())
	assert.Error(t, CaptureRequest{AuthorizationID: "A1"}.Validate())
	assert.Error(t, CaptureRequest{AuthorizationID: "A1", Amount: "0.00"}.Validate())
	assert.NoError(t, CaptureRequest{AuthorizationID: "A1", Amount: "10.00"}.Validate())

	assert.NoError(t, RefundRequest{CaptureID: "C1", Full: true}.Validate())
	assert.Error(t, RefundRequest{CaptureID: "C1", Amount: "abc"}.Validate())

	assert.Error(t, ReauthorizeRequest{AuthorizationID: "A1"}.Validate())
	assert.Error(t, VoidRequest{}.Validate())

	req := CreateOrderRequest{OrderID: "1001", Intent: IntentCapture, Currency: "USD", Total: "20.00",
		Items: []LineItem{{Name: "Book", Quantity: 0, UnitAmount: "20.00"}}}
	assert.Error(t, req.Validate())
	req.Items[0].Quantity = 1
	assert.NoError(t, req.Validate())
}

func TestParseCurrencyAmount(t *testing.T) {
	d, err := ParseCurrencyAmount("1000", "JPY")
	require.NoError(t, err)
	assert.True(t, d.Equal(decimal.NewFromInt(1000)))

	_, err = ParseCurrencyAmount("99.5", "JPY")
	assert.ErrorIs(t, err, ErrAmountPrecision)

	d, err = ParseCurrencyAmount("99.50", "USD")
	require.NoError(t, err)
	assert.Equal(t, "99.50", FormatAmount(d, "USD"))

	_, err = ParseCurrencyAmount("1.005", "USD")
	assert.ErrorIs(t, err, ErrAmountPrecision)

	// trailing zeros carry no extra precision
	_, err = ParseCurrencyAmount("1000.00", "JPY")
	assert.NoError(t, err)
}
