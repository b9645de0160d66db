package security

import (
	"errors"
	"testing"
)

func validationCode(t *testing.T, err error) string {
	t.Helper()

	var verr *PasswordValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected PasswordValidationError, got %v", err)
	}
	return verr.Code
}

func TestDefaultPasswordValidator_DistinctReasons(t *testing.T) {
	validator := DefaultPasswordValidator(8)

	cases := []struct {
		name     string
		password string
		code     string
	}{
		{name: "too short", password: "Ab1", code: "min_length"},
		{name: "no uppercase", password: "alllower1", code: "uppercase"},
		{name: "no lowercase", password: "ALLUPPER1", code: "lowercase"},
		{name: "no digit", password: "NoDigitsHere", code: "digit"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validator.Validate(tc.password)
			if err == nil {
				t.Fatalf("expected %q to be rejected", tc.password)
			}
			if code := validationCode(t, err); code != tc.code {
				t.Fatalf("expected code %s, got %s", tc.code, code)
			}
		})
	}

	if err := validator.Validate("Sufficient1"); err != nil {
		t.Fatalf("expected valid password to pass, got %v", err)
	}
}

func TestMinLengthRule_CountsRunes(t *testing.T) {
	rule := MinLengthRule(8)

	// 8 multibyte runes must satisfy an 8-character minimum.
	if err := rule.Validate("пароль12"); err != nil {
		t.Fatalf("expected rune-counted password to pass, got %v", err)
	}
}

func TestRequireDifferentFrom(t *testing.T) {
	rule := RequireDifferentFrom("OldPassword1")

	if err := rule.Validate("OldPassword1"); err == nil {
		t.Fatalf("expected reuse of current password to be rejected")
	}
	if err := rule.Validate("NewPassword2"); err != nil {
		t.Fatalf("expected different password to pass, got %v", err)
	}
}

func TestRequirePasswordStrengthRule(t *testing.T) {
	rule := RequirePasswordStrengthRule(3)

	if err := rule.Validate("Password1"); err == nil {
		t.Fatalf("expected dictionary password to be rejected")
	}
	if code := validationCode(t, rule.Validate("Password1")); code != "weak_password" {
		t.Fatalf("expected weak_password code, got %s", code)
	}

	if err := rule.Validate("k9#Vx!mQz74Lw"); err != nil {
		t.Fatalf("expected high-entropy password to pass, got %v", err)
	}
}

func TestStrictPasswordValidator(t *testing.T) {
	validator := StrictPasswordValidator(8, 2)

	// "Password1" satisfies every character rule but is a dictionary
	// password; the strength floor must catch it.
	if DefaultPasswordValidator(8).Validate("Password1") != nil {
		t.Fatal("character rules alone should accept Password1")
	}
	err := validator.Validate("Password1")
	if err == nil {
		t.Fatal("expected guessable password to be rejected")
	}
	if code := validationCode(t, err); code != "weak_password" {
		t.Fatalf("expected weak_password code, got %s", code)
	}

	if err := validator.Validate("k9#Vx!mQz74Lw"); err != nil {
		t.Fatalf("expected strong password to pass, got %v", err)
	}
}

func TestStrictPasswordValidator_ScoreDisabled(t *testing.T) {
	validator := StrictPasswordValidator(8, 0)

	if err := validator.Validate("Password1"); err != nil {
		t.Fatalf("score 0 must degrade to the character rules, got %v", err)
	}
}
