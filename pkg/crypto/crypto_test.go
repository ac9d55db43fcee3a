package crypto

import "testing"

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("secret")
	if err != nil {
		t.Fatalf("hash error: %v", err)
	}

	if !VerifyPassword(hash, "secret") {
		t.Fatal("expected password verification to succeed")
	}

	if VerifyPassword(hash, "incorrect") {
		t.Fatal("expected password verification to fail")
	}
}

func TestGenerateTokenLengthAndUniqueness(t *testing.T) {
	a, err := GenerateToken(48)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	b, err := GenerateToken(48)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}

	if a == b {
		t.Fatal("expected two random tokens to differ")
	}
	if len(a) == 0 {
		t.Fatal("expected non-empty token")
	}
}

func TestGenerateOTPStaysSixDigits(t *testing.T) {
	for i := 0; i < 200; i++ {
		code, err := GenerateOTP(6)
		if err != nil {
			t.Fatalf("otp error: %v", err)
		}
		if code < 100000 || code > 999999 {
			t.Fatalf("expected 6-digit code with leading 1-9, got %d", code)
		}
	}
}
