package util

import (
	"testing"
)

func TestRandomIntn(t *testing.T) {
	for i := 0; i < 100; i++ {
		n, err := RandomIntn(10)
		if err != nil {
			t.Fatalf("RandomIntn failed: %v", err)
		}
		if n < 0 || n >= 10 {
			t.Fatalf("RandomIntn(10) returned %d", n)
		}
	}
}

func TestRandomDigits(t *testing.T) {
	t.Run("SixDigits", func(t *testing.T) {
		for i := 0; i < 200; i++ {
			code, err := RandomDigits(6)
			if err != nil {
				t.Fatalf("RandomDigits failed: %v", err)
			}
			if len(code) != 6 || !IsASCIIDigits(code) {
				t.Fatalf("expected 6 ASCII digits, got %q", code)
			}
			if code[0] == '0' {
				t.Fatalf("expected no leading zero, got %q", code)
			}
		}
	})

	t.Run("RejectBadWidth", func(t *testing.T) {
		if _, err := RandomDigits(0); err == nil {
			t.Error("expected error for width 0")
		}
		if _, err := RandomDigits(19); err == nil {
			t.Error("expected error for width 19")
		}
	})
}

func TestRandomBytes(t *testing.T) {
	b, err := RandomBytes(32)
	if err != nil {
		t.Fatalf("RandomBytes failed: %v", err)
	}
	if len(b) != 32 {
		t.Errorf("expected 32 bytes, got %d", len(b))
	}
}

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"alice@example.com", "alice@example.com"},
		{"  Alice@Example.COM ", "alice@example.com"},
		{"ＡＬＩＣＥ@example.com", "alice@example.com"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeEmail(tt.in); got != tt.want {
			t.Errorf("NormalizeEmail(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsASCIIDigits(t *testing.T) {
	if !IsASCIIDigits("012345") {
		t.Error("expected digits to be accepted")
	}
	for _, s := range []string{"", "12a456", " 123456", "１２３"} {
		if IsASCIIDigits(s) {
			t.Errorf("expected %q to be rejected", s)
		}
	}
}

func TestWipeBytes(t *testing.T) {
	b := []byte("secret")
	WipeBytes(b)
	for i, c := range b {
		if c != 0 {
			t.Fatalf("byte %d not wiped", i)
		}
	}
}

func TestCompactIDs(t *testing.T) {
	got := CompactIDs([]string{" a ", "b", "", "a", "  ", "c", "b"})
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("CompactIDs = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("CompactIDs = %q, want %q", got, want)
		}
	}
	if out := CompactIDs(nil); out == nil || len(out) != 0 {
		t.Fatalf("CompactIDs(nil) = %#v, want empty non-nil slice", out)
	}
}
