package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeISBN(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"978-0-14-044913-6", "9780140449136"},
		{" 9780140449136 ", "9780140449136"},
		{"0-8044-2957-x", "080442957X"},
		{"080442957X", "080442957X"},
		{"9999999999999", "9999999999999"},
		{"12345", ""},
		{"97801404491X6", ""},
		{"X804429570", ""},
		{"isbn9780140449136", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeISBN(tt.in))
		})
	}
}

func TestISBNConversion(t *testing.T) {
	assert.Equal(t, "9780140449136", ISBN10To13("0140449132"))
	assert.Equal(t, "0140449132", ISBN13To10("9780140449136"))
	assert.Equal(t, "9780306406157", ISBN10To13("0306406152"))

	// 979 prefixes have no ISBN-10 form
	assert.Equal(t, "", ISBN13To10("9791032305690"))
	assert.Equal(t, "", ISBN10To13("123"))

	// A wrong check digit gives no counterpart
	assert.Equal(t, "", ISBN13To10("9781000000001"))
	assert.Equal(t, "", ISBN10To13("0140449133"))
}

func TestValidCheckDigit(t *testing.T) {
	assert.True(t, ValidCheckDigit("9780140449136"))
	assert.True(t, ValidCheckDigit("080442957X"))
	assert.True(t, ValidCheckDigit("0306406152"))
	assert.False(t, ValidCheckDigit("9780140449137"))
	assert.False(t, ValidCheckDigit("0306406153"))
	assert.False(t, ValidCheckDigit("12345"))
}

func TestISBNVariants(t *testing.T) {
	assert.Equal(t, []string{"9780140449136", "0140449132"}, ISBNVariants("9780140449136"))
	assert.Equal(t, []string{"0140449132", "9780140449136"}, ISBNVariants("0140449132"))
	assert.Equal(t, []string{"9999999999999"}, ISBNVariants("9999999999999"))

	// Same first twelve digits, different (wrong) check digits: no shared counterpart
	assert.Equal(t, []string{"9781000000001"}, ISBNVariants("9781000000001"))
	assert.Equal(t, []string{"9781000000002"}, ISBNVariants("9781000000002"))
}
