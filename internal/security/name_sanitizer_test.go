package security

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSanitizeName(t *testing.T) {
	sanitizer := NewNameSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "プレーンテキストはそのまま", input: "Alice Smith", want: "Alice Smith"},
		{name: "空文字列は空文字列", input: "", want: ""},
		{name: "タグが除去される", input: "<b>Alice</b>", want: "Alice"},
		{name: "scriptは中身ごと除去される", input: "<script>alert(1)</script>Bob", want: "Bob"},
		{name: "エンティティはプレーンテキストに戻る", input: "Tom & Jerry", want: "Tom & Jerry"},
		{name: "空白が正規化される", input: "  Ana \n\t Maria  ", want: "Ana Maria"},
		{name: "タグのみの場合は空", input: "<img src=x onerror=alert(1)>", want: ""},
		{name: "マルチバイト文字", input: "山田 太郎", want: "山田 太郎"},
		{name: "エンコードされたscriptは除去される", input: "&lt;script&gt;alert(1)&lt;/script&gt;", want: ""},
		{name: "エンコードされたタグは除去される", input: "&lt;b&gt;Carol&lt;/b&gt;", want: "Carol"},
		{name: "二重エンコードも除去される", input: "&amp;lt;img src=x onerror=alert(1)&amp;gt;Dave", want: "Dave"},
		{name: "タグでない不等号は残る", input: "a < b", want: "a < b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizer.SanitizeName(tt.input)
			if got != tt.want {
				t.Errorf("SanitizeName(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSanitizeName_TruncatesLongNames(t *testing.T) {
	sanitizer := NewNameSanitizer()

	got := sanitizer.SanitizeName(strings.Repeat("あ", MaxNameLength+20))
	if n := utf8.RuneCountInString(got); n != MaxNameLength {
		t.Errorf("rune count = %d, want %d", n, MaxNameLength)
	}
}

func TestSanitizeName_Idempotent(t *testing.T) {
	sanitizer := NewNameSanitizer()

	inputs := []string{
		"<i>x</i> & y",
		"a  b",
		"plain",
		"&lt;script&gt;alert(1)&lt;/script&gt;",
		"&amp;lt;b&amp;gt;x",
		"a < b",
	}
	for _, in := range inputs {
		once := sanitizer.SanitizeName(in)
		twice := sanitizer.SanitizeName(once)
		if once != twice {
			t.Errorf("SanitizeName not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestSanitizeName_OutputHasNoTags(t *testing.T) {
	sanitizer := NewNameSanitizer()

	inputs := []string{
		"&lt;script&gt;alert(1)&lt;/script&gt;",
		"&lt;img src=x onerror=alert(1)&gt;",
		strings.Repeat("&amp;", 12) + "lt;script&gt;x",
	}
	for _, in := range inputs {
		got := sanitizer.SanitizeName(in)
		if strings.Contains(got, "<script") || strings.Contains(got, "<img") {
			t.Errorf("SanitizeName(%q) = %q, contains markup", in, got)
		}
	}
}
