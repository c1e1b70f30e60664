package copier

import "testing"

func TestUnescape(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"a &lt; b &gt; c", "a < b > c"},
		{"fish &amp; chips", "fish & chips"},
		{"&amp;lt;", "&lt;"},
		{"&quot;untouched&quot;", "&quot;untouched&quot;"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := Unescape(tc.in); got != tc.want {
			t.Fatalf("Unescape(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
