package transfer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "nil error",
			err:  nil,
			want: false,
		},
		{
			name: "structured balance code",
			err:  &ProviderError{Code: "balance_insufficient", Message: "You have insufficient available funds"},
			want: true,
		},
		{
			name: "structured non-balance code wins over message text",
			err:  &ProviderError{Code: "account_invalid", Message: "cannot create a transfer to this account"},
			want: false,
		},
		{
			name: "insufficient available balance",
			err:  errors.New("Insufficient available balance to cover the transfer"),
			want: true,
		},
		{
			name: "balance is not sufficient",
			err:  errors.New("your balance is not sufficient"),
			want: true,
		},
		{
			name: "insufficient funds",
			err:  errors.New("INSUFFICIENT FUNDS in account"),
			want: true,
		},
		{
			name: "cannot create a transfer",
			err:  errors.New("You cannot create a transfer until funds settle"),
			want: true,
		},
		{
			name: "unrelated provider message",
			err:  errors.New("no such destination account"),
			want: false,
		},
		{
			name: "unstructured error with empty code falls back to text",
			err:  &ProviderError{Message: "insufficient funds"},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}
