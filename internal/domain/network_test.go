package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMobileNetwork_Validate(t *testing.T) {
	tests := []struct {
		name    string
		network MobileNetwork
		wantErr bool
		errMsg  string
	}{
		{
			name:    "complete network should pass",
			network: MobileNetwork{ID: 1, Name: "MTN Mobile Money", Code: "MTN", Country: "CM"},
		},
		{
			name:    "zero ID should fail",
			network: MobileNetwork{Name: "MTN Mobile Money", Code: "MTN", Country: "CM"},
			wantErr: true,
			errMsg:  "network ID must be positive",
		},
		{
			name:    "missing code should fail",
			network: MobileNetwork{ID: 2, Name: "Orange Money", Country: "CM"},
			wantErr: true,
			errMsg:  "network code cannot be empty",
		},
		{
			name:    "missing country should fail",
			network: MobileNetwork{ID: 2, Name: "Orange Money", Code: "ORANGE"},
			wantErr: true,
			errMsg:  "network country cannot be empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.network.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestErrorTaxonomy(t *testing.T) {
	verr := fmt.Errorf("issue invoice: %w", NewValidationError("phone", "must contain 8 to 15 digits"))
	assert.True(t, IsValidation(verr))
	assert.Equal(t, "issue invoice: invalid phone: must contain 8 to 15 digits", verr.Error())

	perr := fmt.Errorf("reconcile: %w", &PersistenceError{Op: "update transaction", Err: errors.New("connection reset")})
	assert.True(t, IsPersistence(perr))
	assert.False(t, IsValidation(perr))

	wrapped := &PersistenceError{Op: "get transaction", Err: ErrNotFound}
	assert.ErrorIs(t, wrapped, ErrNotFound)
}
