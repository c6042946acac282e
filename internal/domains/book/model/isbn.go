package model

import (
	"strings"
)

// NormalizeISBN strips hyphens and whitespace and upper-cases a trailing x.
// It returns "" when the result is neither a 10 nor a 13 character ISBN.
// Check digits are not verified; providers carry legacy numbers that fail them.
func NormalizeISBN(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == 'x' || r == 'X':
			b.WriteRune('X')
		case r == '-' || r == ' ' || r == '\t' || r == '\n' || r == '\r':
		default:
			return ""
		}
	}

	s := b.String()
	switch len(s) {
	case 10:
		if strings.Contains(s[:9], "X") {
			return ""
		}
		return s
	case 13:
		if strings.Contains(s, "X") {
			return ""
		}
		return s
	}
	return ""
}

func IsISBN10(s string) bool { return len(s) == 10 && NormalizeISBN(s) == s }

func IsISBN13(s string) bool { return len(s) == 13 && NormalizeISBN(s) == s }

// ValidCheckDigit reports whether a normalized ISBN's last character matches
// the check digit of the rest
func ValidCheckDigit(isbn string) bool {
	switch {
	case IsISBN10(isbn):
		return isbn10CheckDigit(isbn[:9]) == isbn[9]
	case IsISBN13(isbn):
		return isbn13CheckDigit(isbn[:12]) == isbn[12]
	}
	return false
}

// ISBN10To13 converts a normalized ISBN-10 to its 978-prefixed ISBN-13 form.
// An input whose own check digit is wrong has no counterpart: two such inputs
// can share the first nine digits and would map to the same ISBN-13.
func ISBN10To13(isbn10 string) string {
	if !IsISBN10(isbn10) || !ValidCheckDigit(isbn10) {
		return ""
	}
	core := "978" + isbn10[:9]
	return core + string(isbn13CheckDigit(core))
}

// ISBN13To10 converts a 978-prefixed ISBN-13 to ISBN-10. Other prefixes and
// inputs with a wrong check digit have no ISBN-10 form.
func ISBN13To10(isbn13 string) string {
	if !IsISBN13(isbn13) || !strings.HasPrefix(isbn13, "978") || !ValidCheckDigit(isbn13) {
		return ""
	}
	core := isbn13[3:12]
	return core + string(isbn10CheckDigit(core))
}

// ISBNVariants returns the identifier plus its counterpart form when one exists.
// Identifiers with a wrong check digit are looked up as given.
func ISBNVariants(isbn string) []string {
	switch len(isbn) {
	case 10:
		if alt := ISBN10To13(isbn); alt != "" {
			return []string{isbn, alt}
		}
	case 13:
		if alt := ISBN13To10(isbn); alt != "" {
			return []string{isbn, alt}
		}
	}
	return []string{isbn}
}

func isbn13CheckDigit(core12 string) byte {
	sum := 0
	for i := 0; i < 12; i++ {
		d := int(core12[i] - '0')
		if i%2 == 1 {
			d *= 3
		}
		sum += d
	}
	return byte('0' + (10-sum%10)%10)
}

func isbn10CheckDigit(core9 string) byte {
	sum := 0
	for i := 0; i < 9; i++ {
		sum += int(core9[i]-'0') * (10 - i)
	}
	check := (11 - sum%11) % 11
	if check == 10 {
		return 'X'
	}
	return byte('0' + check)
}
