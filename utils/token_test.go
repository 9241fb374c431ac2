package utils

import "testing"

func TestJwtRoundTrip(t *testing.T) {
	t.Setenv("API_SECRET", "test-secret")
	t.Setenv("TOKEN_HOUR_LIFESPAN", "2")

	token, err := JwtGenerate(7, "biz-1", RoleAdmin)
	if err != nil {
		t.Fatalf("JwtGenerate: %v", err)
	}
	parsed, err := JwtValidate(token)
	if err != nil || !parsed.Valid {
		t.Fatalf("JwtValidate: %v", err)
	}
	claim, ok := parsed.Claims.(*JwtCustomClaim)
	if !ok || claim.ID != 7 || claim.BusinessId != "biz-1" || claim.Role != RoleAdmin {
		t.Fatalf("unexpected claims: %+v", parsed.Claims)
	}

	t.Setenv("API_SECRET", "rotated")
	if _, err := JwtValidate(token); err == nil {
		t.Fatalf("token signed with an old secret must not validate")
	}
	t.Setenv("API_SECRET", "")
	if _, err := JwtGenerate(7, "biz-1", RoleAdmin); err == nil {
		t.Fatalf("expected error without a secret")
	}
}
