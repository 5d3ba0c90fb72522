package utils

import (
	"errors"
	"testing"
	"time"

	"venty/internal/config"
)

func newTestTokens() *TokenManager {
	return NewTokenManager(config.JWTConfig{
		Secret:          "user-secret",
		ExpiryHour:      1,
		AdminSecret:     "admin-secret",
		AdminExpiryHour: 1,
	})
}

func TestTokenManager_UserRoundTrip(t *testing.T) {
	m := newTestTokens()

	profile := UserProfile{UserID: "u1", Role: "user", Name: "Mona", Phone: "01012345678", Email: "mona@example.com"}
	token, err := m.GenerateUserJWT(profile)
	if err != nil {
		t.Fatalf("GenerateUserJWT() error = %v", err)
	}
	claims, err := m.ValidateUserJWT(token)
	if err != nil {
		t.Fatalf("ValidateUserJWT() error = %v", err)
	}
	if claims.UserProfile != profile {
		t.Errorf("profile = %+v, want %+v", claims.UserProfile, profile)
	}
	if claims.Subject != "u1" {
		t.Errorf("subject = %q", claims.Subject)
	}
}

func TestTokenManager_Rejects(t *testing.T) {
	m := newTestTokens()
	userToken, _ := m.GenerateUserJWT(UserProfile{UserID: "u1", Role: "user"})
	adminToken, _ := m.GenerateAdminJWT("admin", "admin")

	expired := newTestTokens()
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expiredToken, _ := expired.GenerateUserJWT(UserProfile{UserID: "u1", Role: "user"})

	tests := []struct {
		name  string
		check func() error
	}{
		{"garbage", func() error { _, err := m.ValidateUserJWT("not.a.token"); return err }},
		{"admin token as user", func() error { _, err := m.ValidateUserJWT(adminToken); return err }},
		{"user token as admin", func() error { _, err := m.ValidateAdminJWT(userToken); return err }},
		{"expired", func() error { _, err := m.ValidateUserJWT(expiredToken); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.check(); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("error = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestValidateStruct(t *testing.T) {
	type participant struct {
		ID   string `validate:"required"`
		Role string `validate:"required,participant_role"`
	}
	type request struct {
		Variant      string        `validate:"required,variant"`
		Participants []participant `validate:"len=2,dive"`
	}

	ok := request{Variant: "unified", Participants: []participant{{"a", "user"}, {"b", "merchant"}}}
	if errs := ValidateStruct(ok); len(errs) != 0 {
		t.Errorf("valid request: %+v", errs)
	}

	bad := request{Variant: "auction", Participants: []participant{{"a", "admin"}, {"", "peer"}}}
	details := ValidationDetails(ValidateStruct(bad))
	for _, field := range []string{"variant", "participants[0].role", "participants[1].id"} {
		if _, found := details[field]; !found {
			t.Errorf("missing error for %s in %v", field, details)
		}
	}
}
