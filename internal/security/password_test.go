package security

import "testing"

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("Secret1!")
	if err != nil {
		t.Fatalf("hash error: %v", err)
	}
	if err := CheckPassword(hash, "Secret1!"); err != nil {
		t.Fatalf("expected password to match")
	}
	if err := CheckPassword(hash, "wrong"); err == nil {
		t.Fatalf("expected password mismatch")
	}
}

func TestEmptyHashNeverMatches(t *testing.T) {
	if err := CheckPassword("", ""); err == nil {
		t.Fatalf("empty hash must not match")
	}
}
