package credential

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestCipher_EncryptDecryptRoundTrip(t *testing.T) {
	c, err := NewCipher("test-passphrase")
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}

	encrypted, err := c.Encrypt("sk-super-secret-key")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if encrypted == "sk-super-secret-key" {
		t.Fatal("Encrypt returned plaintext unchanged")
	}

	decrypted, err := c.Decrypt(encrypted)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if decrypted != "sk-super-secret-key" {
		t.Errorf("Decrypt = %q, want original plaintext", decrypted)
	}
}

func TestCipher_WrongPassphraseFails(t *testing.T) {
	c1, _ := NewCipher("correct-passphrase")
	c2, _ := NewCipher("wrong-passphrase")

	encrypted, err := c1.Encrypt("sk-secret")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := c2.Decrypt(encrypted); err == nil {
		t.Fatal("expected decrypt with wrong passphrase to fail")
	}
}

func TestMask(t *testing.T) {
	tests := []struct {
		secret string
		want   string
	}{
		{"sk-1234567890abcdef", "***************cdef"},
		{"abc", "***"},
		{"", "***"},
	}
	for _, tt := range tests {
		if got := Mask(tt.secret, 4); got != tt.want {
			t.Errorf("Mask(%q, 4) = %q, want %q", tt.secret, got, tt.want)
		}
	}
}

func TestRecord_QuotaEligible(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name string
		r    Record
		want bool
	}{
		{"active under quota", Record{Status: StatusActive, DailyQuota: 100, CurrentDailyUsage: 50}, true},
		{"disabled", Record{Status: StatusDisabled}, false},
		{"too many consecutive failures", Record{Status: StatusActive, ConsecutiveFailures: 5}, false},
		{"daily quota reached", Record{Status: StatusActive, DailyQuota: 10, CurrentDailyUsage: 10}, false},
		{"monthly quota reached", Record{Status: StatusActive, MonthlyQuota: 1000, CurrentMonthlyUsage: 1000}, false},
		{"unlimited quota", Record{Status: StatusActive, LastUsedAt: &now}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.r.quotaEligible(); got != tt.want {
				t.Errorf("quotaEligible() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSelectMin_PriorityTieBreaksOnID(t *testing.T) {
	records := []Record{
		{ID: uuid.MustParse("00000000-0000-0000-0000-000000000002"), Priority: 1, KeyID: "b"},
		{ID: uuid.MustParse("00000000-0000-0000-0000-000000000001"), Priority: 1, KeyID: "a"},
		{ID: uuid.MustParse("00000000-0000-0000-0000-000000000003"), Priority: 2, KeyID: "c"},
	}
	got := selectMin(records, func(r Record) int { return r.Priority })
	if got.Priority != 1 {
		t.Errorf("selected Priority = %d, want 1", got.Priority)
	}
	if got.KeyID != "a" {
		t.Errorf("selected KeyID = %q, want %q (lowest ID among equal priorities)", got.KeyID, "a")
	}
}
