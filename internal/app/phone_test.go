package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePhoneNumber(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"98765432", "+4798765432"},
		{"004798765432", "+4798765432"},
		{"+4798765432", "+4798765432"},
		{" +47 987 65 432 ", "+4798765432"},
		{"4798765432", "+4798765432"},
		{"(+47) 987-65-432", "+4798765432"}, // '+' not leading, treated as a bare number with country code
		{"098765432", "+4798765432"},
		{"0046701234567", "+46701234567"},
		{"123456", "+123456"},
	}
	for _, tc := range cases {
		got, err := NormalizePhoneNumber(tc.in, "47", 8)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestNormalizePhoneNumber_OtherCountryCode(t *testing.T) {
	got, err := NormalizePhoneNumber("0701234567", "46", 9)
	require.NoError(t, err)
	assert.Equal(t, "+46701234567", got)
}

func TestNormalizePhoneNumber_NoDigits(t *testing.T) {
	for _, in := range []string{"", "   ", "+", "abc", "00", "0000"} {
		_, err := NormalizePhoneNumber(in, "47", 8)
		assert.ErrorIs(t, err, ErrInvalidPhone, "%q", in)
	}
}
