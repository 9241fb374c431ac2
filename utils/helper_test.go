package utils

import (
	"context"
	"strings"
	"testing"
)

func TestValidateStruct_FlattensFieldErrors(t *testing.T) {
	type input struct {
		Name  string `validate:"required"`
		Notes string `validate:"max=3"`
	}
	if err := ValidateStruct(input{Name: "ok"}); err != nil {
		t.Fatalf("valid input: %v", err)
	}
	err := ValidateStruct(input{Notes: "too long"})
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if got := err.Error(); got != "invalid input (Name: required, Notes: max)" {
		t.Fatalf("unexpected message: %q", got)
	}
}

func TestNormalizePhone(t *testing.T) {
	t.Setenv("DEFAULT_PHONE_REGION", "US")
	got, err := NormalizePhone(" (201) 555-0123 ")
	if err != nil || got != "+12015550123" {
		t.Fatalf("NormalizePhone: %q %v", got, err)
	}
	if got, err := NormalizePhone("+1 201-555-0123"); err != nil || got != "+12015550123" {
		t.Fatalf("NormalizePhone with prefix: %q %v", got, err)
	}
	for _, in := range []string{"", "12", "not a number"} {
		if _, err := NormalizePhone(in); err == nil {
			t.Fatalf("NormalizePhone(%q) should fail", in)
		}
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := SetBusinessIdInContext(context.Background(), "biz-1")
	ctx = SetUserIdInContext(ctx, 3)
	if v, ok := GetBusinessIdFromContext(ctx); !ok || v != "biz-1" {
		t.Fatalf("business id: %q %v", v, ok)
	}
	if v, ok := GetUserIdFromContext(ctx); !ok || v != 3 {
		t.Fatalf("user id: %d %v", v, ok)
	}
	if _, ok := GetCorrelationIdFromContext(ctx); ok {
		t.Fatalf("correlation id should be unset")
	}
}

func TestUniqueSlice(t *testing.T) {
	got := UniqueSlice([]int{3, 1, 3, 2, 1})
	if len(got) != 3 || got[0] != 3 || got[1] != 1 || got[2] != 2 {
		t.Fatalf("UniqueSlice: %v", got)
	}
	if s := DereferencePtr[string](nil, "x"); !strings.EqualFold(s, "x") {
		t.Fatalf("DereferencePtr default: %q", s)
	}
}
