package indexer

import "testing"

func TestPreprocess(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"line endings", "a\r\nb\rc", "a\nb\nc"},
		{"control characters", "a\x00b\x07c\uFEFF", "abc"},
		{"horizontal whitespace", "a  \t b  c", "a b c"},
		{"trailing spaces", "line one   \nline two\t", "line one\nline two"},
		{"blank lines", "para one\n\n\n\n\npara two", "para one\n\npara two"},
		{"whitespace-only lines", "a\n   \n \n\nb", "a\n\nb"},
		{"outer whitespace", "\n\n  text  \n\n", "text"},
		{"unicode kept", "日本語  テキスト", "日本語 テキスト"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Preprocess(tt.in); got != tt.want {
				t.Errorf("Preprocess(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
