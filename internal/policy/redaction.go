package policy

import "regexp"

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`)
	cardPattern  = regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`)
)

// Redaction is the result of masking PII in one transcript turn.
type Redaction struct {
	Text   string
	Emails int
	Cards  int
	Phones int
}

func (r Redaction) Changed() bool {
	return r.Emails+r.Cards+r.Phones > 0
}

// Redact masks emails, card numbers and phone numbers. Cards are matched
// before phones so long digit runs are not reported as phone numbers.
func Redact(input string) Redaction {
	r := Redaction{Text: input}
	r.Text, r.Emails = replaceCounting(emailPattern, r.Text, "[REDACTED_EMAIL]")
	r.Text, r.Cards = replaceCounting(cardPattern, r.Text, "[REDACTED_CARD]")
	r.Text, r.Phones = replaceCounting(phonePattern, r.Text, "[REDACTED_PHONE]")
	return r
}

func replaceCounting(re *regexp.Regexp, in, marker string) (string, int) {
	n := 0
	out := re.ReplaceAllStringFunc(in, func(string) string {
		n++
		return marker
	})
	return out, n
}
