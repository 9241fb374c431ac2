package utils

import (
	"fmt"
	"strings"

	"github.com/mmdatafocus/kiosk_backend/config"
	"github.com/ttacon/libphonenumber"
)

func UniqueSlice[T comparable](slice []T) []T {
	inResult := make(map[T]bool)
	var result []T
	for _, elm := range slice {
		if _, ok := inResult[elm]; !ok {
			inResult[elm] = true
			result = append(result, elm)
		}
	}
	return result
}

func DereferencePtr[T any](ptr *T, defaults ...T) T {
	var defaultValue T
	if len(defaults) > 0 {
		defaultValue = defaults[0]
	}
	if ptr == nil {
		return defaultValue
	}
	return *ptr
}

// NormalizePhone parses a phone number (region DEFAULT_PHONE_REGION when it has no
// country prefix) and returns it in E.164 form.
func NormalizePhone(phoneNumber string) (string, error) {
	phoneNumber = strings.TrimSpace(phoneNumber)
	if phoneNumber == "" {
		return "", fmt.Errorf("phone number is required")
	}
	p, err := libphonenumber.Parse(phoneNumber, config.DefaultPhoneRegion())
	if err != nil {
		return "", err
	}
	if !libphonenumber.IsValidNumber(p) {
		return "", fmt.Errorf("phone number is not valid")
	}
	return libphonenumber.Format(p, libphonenumber.E164), nil
}
