package synthesis

import "testing"

func TestSpeechText(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"こんにちは、おもちです。", "こんにちは、おもちです。"},
		{"**元気**だにゃ！😺", "元気 だにゃ！"},
		{"詳しくは [こちら](https://example.com) を見てね", "詳しくは こちら を見てね"},
		{"see https://example.com now", "see now"},
		{"```go\nfmt.Println()\n``` done", "done"},
		{"  \n\t ", ""},
	}
	for _, tc := range cases {
		if got := SpeechText(tc.in); got != tc.want {
			t.Fatalf("SpeechText(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
