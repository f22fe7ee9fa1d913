package policy

import (
	"strings"
	"testing"
)

func TestRedact(t *testing.T) {
	input := "メールは sam@example.com、電話は +81 (90) 1234-5678、カードは 4242 4242 4242 4242 です"
	r := Redact(input)
	if !r.Changed() {
		t.Fatalf("Changed() = false, want true")
	}
	if r.Emails != 1 || r.Cards != 1 || r.Phones != 1 {
		t.Fatalf("counts = emails:%d cards:%d phones:%d, want 1 each", r.Emails, r.Cards, r.Phones)
	}
	for _, marker := range []string{"[REDACTED_EMAIL]", "[REDACTED_PHONE]", "[REDACTED_CARD]"} {
		if !strings.Contains(r.Text, marker) {
			t.Fatalf("output missing marker %q: %q", marker, r.Text)
		}
	}
}

func TestRedactLeavesCleanTextAlone(t *testing.T) {
	r := Redact("こんにちは、今日はいい天気ですね")
	if r.Changed() || r.Text != "こんにちは、今日はいい天気ですね" {
		t.Fatalf("Redact() = %+v, want unchanged", r)
	}
}
