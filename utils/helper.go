package utils

import (
	"errors"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ttacon/libphonenumber"
)

var CountryCode = "NO"

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

func IsValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// NormalizePhone reduces a phone number to a canonical comparable form.
// Numbers that parse return E.164; anything else keeps its digits only, so
// "22 33 44 55" and "22334455" compare equal either way.
func NormalizePhone(phone string) string {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return ""
	}
	if num, err := libphonenumber.Parse(phone, CountryCode); err == nil {
		return libphonenumber.Format(num, libphonenumber.E164)
	}
	return stripNonDigits(phone)
}

func stripNonDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
		if r == '+' && b.Len() == 0 {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeOrgNumber strips spaces and the "NO"/"MVA" decorations some
// registries include around a Norwegian organization number.
func NormalizeOrgNumber(orgnr string) string {
	orgnr = strings.ToUpper(strings.TrimSpace(orgnr))
	orgnr = strings.TrimPrefix(orgnr, "NO")
	orgnr = strings.TrimSuffix(orgnr, "MVA")
	return strings.ReplaceAll(strings.TrimSpace(orgnr), " ", "")
}

// ProcessValidationErrors flattens binding failures into a field→tag map
// for the error response body.
func ProcessValidationErrors(err error) map[string]string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return nil
	}
	errorResponse := make(map[string]string, len(validationErrors))
	for _, ve := range validationErrors {
		errorResponse[ve.Field()] = ve.Tag()
	}
	return errorResponse
}

func UniqueSlice[T comparable](items []T) []T {
	seen := make(map[T]struct{}, len(items))
	out := make([]T, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}

// EqualUnordered compares two string slices ignoring order and duplicates.
func EqualUnordered(a, b []string) bool {
	as := append([]string(nil), UniqueSlice(a)...)
	bs := append([]string(nil), UniqueSlice(b)...)
	if len(as) != len(bs) {
		return false
	}
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}
