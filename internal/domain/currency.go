package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// maxStoredDecimals is the scale of the amount column
const maxStoredDecimals = 2

// zeroDecimalCurrencies have no minor unit
var zeroDecimalCurrencies = map[string]bool{
	"XAF": true,
	"XOF": true,
	"GNF": true,
	"RWF": true,
	"UGX": true,
	"BIF": true,
	"DJF": true,
	"KMF": true,
}

// CurrencyDecimals returns how many fractional digits an amount in currency may carry
func CurrencyDecimals(currency string) int32 {
	if zeroDecimalCurrencies[strings.ToUpper(currency)] {
		return 0
	}
	return maxStoredDecimals
}

// ValidateAmountScale rejects amounts that would be rounded when stored or paid out
func ValidateAmountScale(amount decimal.Decimal, currency string) error {
	places := CurrencyDecimals(currency)
	if !amount.Equal(amount.Truncate(places)) {
		if places == 0 {
			return NewValidationError("amount", fmt.Sprintf("%s amounts must be whole numbers", strings.ToUpper(currency)))
		}
		return NewValidationError("amount", fmt.Sprintf("must have at most %d decimal places", places))
	}
	return nil
}
