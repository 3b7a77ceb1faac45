package simhash

import (
	"strings"
	"testing"
)

func TestFingerprint_Deterministic(t *testing.T) {
	text := "Senior Software Engineer building distributed ingestion pipelines in Go"
	if Fingerprint(text) != Fingerprint(text) {
		t.Error("expected identical fingerprints for identical text")
	}
}

func TestFingerprint_IgnoresCaseAndPunctuation(t *testing.T) {
	a := Fingerprint("Hello, World! Build great things.")
	b := Fingerprint("hello world build great things")
	if a != b {
		t.Errorf("fingerprints differ: %x vs %x", a, b)
	}
}

func TestFingerprint_EmptyText(t *testing.T) {
	if got := Fingerprint(""); got != 0 {
		t.Errorf("Fingerprint(\"\") = %x, want 0", got)
	}
	if got := Fingerprint("--- !!! ..."); got != 0 {
		t.Errorf("Fingerprint(punctuation) = %x, want 0", got)
	}
}

func TestFingerprint_ScaleInvariant(t *testing.T) {
	// Repeating a document doubles every vote without changing its sign,
	// so the fingerprint is identical.
	text := "platform engineer remote golang kubernetes postgres"
	doubled := strings.Repeat(text+" ", 2)
	if Fingerprint(text) != Fingerprint(doubled) {
		t.Error("expected repeated text to keep the same fingerprint")
	}
}

func TestDistance_BitCounting(t *testing.T) {
	tests := []struct {
		name string
		a, b uint64
		want int
	}{
		{"identical", 0xDEADBEEF, 0xDEADBEEF, 0},
		{"one bit", 0, 1 << 5, 1},
		{"one byte", 0xFF, 0x00, 8},
		{"all bits", 0, ^uint64(0), 64},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Distance(tt.a, tt.b); got != tt.want {
				t.Errorf("Distance(%x, %x) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestFingerprint_UnrelatedTextsAreFar(t *testing.T) {
	a := Fingerprint("senior backend engineer go postgres distributed systems remote")
	b := Fingerprint("pastry chef wanted for downtown bakery weekend shifts espresso")
	if d := Distance(a, b); d <= 3 {
		t.Errorf("Distance = %d, expected unrelated texts well beyond the skip threshold", d)
	}
}
