package security

import (
	"strings"
	"testing"
)

func TestPasswordHasher_HashAndVerify(t *testing.T) {
	hasher, err := NewPasswordHasher(DefaultArgon2Config())
	if err != nil {
		t.Fatalf("NewPasswordHasher: %v", err)
	}

	encoded, err := hasher.Hash("correct horse battery staple")
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}

	if !strings.HasPrefix(encoded, "argon2id$v=19$") {
		t.Fatalf("unexpected hash format: %s", encoded)
	}

	ok, err := hasher.Verify("correct horse battery staple", encoded)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if !ok {
		t.Fatalf("expected password to verify")
	}

	ok, err = hasher.Verify("wrong password", encoded)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if ok {
		t.Fatalf("expected mismatch to fail verification")
	}
}

func TestPasswordHasher_SaltedHashesDiffer(t *testing.T) {
	hasher, err := NewPasswordHasher(DefaultArgon2Config())
	if err != nil {
		t.Fatalf("NewPasswordHasher: %v", err)
	}

	first, err := hasher.Hash("same password")
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}
	second, err := hasher.Hash("same password")
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}

	if first == second {
		t.Fatalf("expected distinct salts to produce distinct hashes")
	}
}

func TestPasswordHasher_VerifySurvivesCostChange(t *testing.T) {
	oldCfg := DefaultArgon2Config()
	oldCfg.Iterations = 1
	oldHasher, err := NewPasswordHasher(oldCfg)
	if err != nil {
		t.Fatalf("NewPasswordHasher: %v", err)
	}

	encoded, err := oldHasher.Hash("migrating password")
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}

	newHasher, err := NewPasswordHasher(DefaultArgon2Config())
	if err != nil {
		t.Fatalf("NewPasswordHasher: %v", err)
	}

	ok, err := newHasher.Verify("migrating password", encoded)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if !ok {
		t.Fatalf("expected hash created under old parameters to verify")
	}
}

func TestPasswordHasher_EmptyInputs(t *testing.T) {
	hasher, err := NewPasswordHasher(DefaultArgon2Config())
	if err != nil {
		t.Fatalf("NewPasswordHasher: %v", err)
	}

	ok, err := hasher.Verify("", "whatever")
	if err != nil || ok {
		t.Fatalf("expected empty password to fail cleanly, got ok=%v err=%v", ok, err)
	}

	ok, err = hasher.Verify("password", "")
	if err != nil || ok {
		t.Fatalf("expected empty hash to fail cleanly, got ok=%v err=%v", ok, err)
	}
}

func TestNewPasswordHasher_RejectsWeakConfig(t *testing.T) {
	cfg := DefaultArgon2Config()
	cfg.Memory = 1024

	if _, err := NewPasswordHasher(cfg); err == nil {
		t.Fatalf("expected low-memory configuration to be rejected")
	}
}
