package textutil

import "testing"

func TestSanitizeToken(t *testing.T) {
	cases := map[string]string{
		"":               "unknown",
		"  ":             "unknown",
		"2013-01-12":     "2013-01-12",
		"Expt A/B":       "expt_a_b",
		"__weird!!__":    "weird",
		"Phase_Contrast": "phase_contrast",
	}
	for in, want := range cases {
		if got := SanitizeToken(in); got != want {
			t.Errorf("SanitizeToken(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTruncate(t *testing.T) {
	cases := []struct {
		in    string
		limit int
		want  string
	}{
		{"short", 10, "short"},
		{"line one\nline two", 0, "line one line two"},
		{"abcdefghij", 8, "abcde..."},
		{"abcdef", 2, "ab"},
	}
	for _, tc := range cases {
		if got := Truncate(tc.in, tc.limit); got != tc.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tc.in, tc.limit, got, tc.want)
		}
	}
}
