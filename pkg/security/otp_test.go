package security_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/angelmondragon/fulfillment-backend/pkg/config"
	"github.com/angelmondragon/fulfillment-backend/pkg/security"
)

func testOTPConfig() config.OTPConfig {
	return config.OTPConfig{
		ArgonMemoryKB:    1024,
		ArgonTime:        1,
		ArgonParallelism: 1,
		ArgonSaltLen:     16,
		ArgonKeyLen:      32,
	}
}

func TestGenerateOTPIsSixDigits(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := security.GenerateOTP()
		if err != nil {
			t.Fatalf("GenerateOTP returned error: %v", err)
		}
		if !security.IsWellFormedOTP(code) {
			t.Fatalf("generated code %q is not six digits", code)
		}
	}
}

func TestIsWellFormedOTP(t *testing.T) {
	cases := map[string]bool{
		"123456":  true,
		"000000":  true,
		"12345":   false,
		"1234567": false,
		"12a456":  false,
		" 123456": false,
		"":        false,
		"١٢٣٤٥٦":  false,
	}
	for in, want := range cases {
		if got := security.IsWellFormedOTP(in); got != want {
			t.Fatalf("IsWellFormedOTP(%q)=%v want %v", in, got, want)
		}
	}
}

func TestHashAndVerifyOTP(t *testing.T) {
	hash, err := security.HashOTP("042917", testOTPConfig())
	if err != nil {
		t.Fatalf("HashOTP returned error: %v", err)
	}

	ok, err := security.VerifyOTP("042917", hash)
	if err != nil || !ok {
		t.Fatalf("expected match, ok=%v err=%v", ok, err)
	}

	ok, err = security.VerifyOTP("042918", hash)
	if err != nil {
		t.Fatalf("VerifyOTP returned error for wrong code: %v", err)
	}
	if ok {
		t.Fatal("VerifyOTP returned true for incorrect code")
	}
}

func TestHashOTPRejectsMalformedCode(t *testing.T) {
	if _, err := security.HashOTP("12345", testOTPConfig()); err == nil {
		t.Fatal("expected error for short code")
	}
}

func TestVerifyOTPRejectsMalformedHash(t *testing.T) {
	for _, encoded := range []string{"", "plain", "$argon2id$v=19$m=x,t=1,p=1$c2FsdA$aGFzaA", "$bcrypt$v=19$m=1,t=1,p=1$c2FsdA$aGFzaA"} {
		if _, err := security.VerifyOTP("123456", encoded); !errors.Is(err, security.ErrInvalidHash) {
			t.Fatalf("expected ErrInvalidHash for %q, got %v", encoded, err)
		}
	}
}

func TestHashOTPEncodesClampedParameters(t *testing.T) {
	cfg := testOTPConfig()
	cfg.ArgonTime = 0
	cfg.ArgonKeyLen = 4

	hash, err := security.HashOTP("111111", cfg)
	if err != nil {
		t.Fatalf("HashOTP returned error: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=1024,t=1,p=1$") {
		t.Fatalf("unexpected parameter block in %q", hash)
	}
	if ok, err := security.VerifyOTP("111111", hash); err != nil || !ok {
		t.Fatalf("expected clamped hash to verify, ok=%v err=%v", ok, err)
	}
}

func TestVerifyOTPRejectsOtherVersions(t *testing.T) {
	hash, err := security.HashOTP("222222", testOTPConfig())
	if err != nil {
		t.Fatalf("HashOTP returned error: %v", err)
	}
	downgraded := strings.Replace(hash, "v=19", "v=16", 1)
	if _, err := security.VerifyOTP("222222", downgraded); !errors.Is(err, security.ErrInvalidHash) {
		t.Fatalf("expected ErrInvalidHash, got %v", err)
	}
}
