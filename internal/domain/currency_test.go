package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestValidateAmountScale(t *testing.T) {
	tests := []struct {
		name     string
		amount   string
		currency string
		wantErr  bool
		errMsg   string
	}{
		{name: "whole XAF should pass", amount: "1000", currency: "XAF"},
		{name: "trailing zeros should pass", amount: "1000.00", currency: "XAF"},
		{name: "fractional XAF should fail", amount: "1000.5", currency: "XAF", wantErr: true, errMsg: "invalid amount: XAF amounts must be whole numbers"},
		{name: "lower case code is recognised", amount: "10.5", currency: "xof", wantErr: true, errMsg: "XOF amounts must be whole numbers"},
		{name: "cents should pass", amount: "12.34", currency: "EUR"},
		{name: "sub-cent amount should fail", amount: "1000.555", currency: "EUR", wantErr: true, errMsg: "must have at most 2 decimal places"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAmountScale(decimal.RequireFromString(tt.amount), tt.currency)
			if tt.wantErr {
				assert.Error(t, err)
				assert.True(t, IsValidation(err))
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
