package validator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type verifyBody struct {
	Email string `validate:"required,email,max=254"`
	Code  string `validate:"required,otp"`
	Token string `validate:"omitempty,max=2048,b64url"`
}

func TestV10Validator_Validate(t *testing.T) {
	v, err := NewV10Validator()
	require.NoError(t, err)

	tests := []struct {
		name   string
		input  verifyBody
		fields map[string]string
	}{
		{
			name:  "valid without token",
			input: verifyBody{Email: "admin@x.com", Code: "012345"},
		},
		{
			name:  "valid with token",
			input: verifyBody{Email: "admin@x.com", Code: "999999", Token: "eyJlbWFpbCI6ImEifQ-_x"},
		},
		{
			name:   "short code",
			input:  verifyBody{Email: "admin@x.com", Code: "12345"},
			fields: map[string]string{"code": "Code must be exactly 6 digits"},
		},
		{
			name:   "letters in code",
			input:  verifyBody{Email: "admin@x.com", Code: "12a456"},
			fields: map[string]string{"code": "Code must be exactly 6 digits"},
		},
		{
			name:  "token at the length limit",
			input: verifyBody{Email: "admin@x.com", Code: "123456", Token: strings.Repeat("a-_9", 512)},
		},
		{
			name:   "padded token",
			input:  verifyBody{Email: "admin@x.com", Code: "123456", Token: "abc="},
			fields: map[string]string{"token": "Token is not a valid token"},
		},
		{
			name:  "missing everything",
			input: verifyBody{},
			fields: map[string]string{
				"email": "Email is a required field",
				"code":  "Code is a required field",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.input)
			if tt.fields == nil {
				assert.NoError(t, err)
				return
			}

			var verr V10ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.fields, verr.Values())
		})
	}
}

func TestV10Validator_TokenTooLong(t *testing.T) {
	v, err := NewV10Validator()
	require.NoError(t, err)

	err = v.Validate(verifyBody{Email: "admin@x.com", Code: "123456", Token: strings.Repeat("a", 2049)})

	var verr V10ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Values(), "token")
	assert.Len(t, verr.Values(), 1)
}
