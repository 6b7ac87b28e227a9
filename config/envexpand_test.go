package config

import "testing"

func TestExpandEnv(t *testing.T) {
	t.Setenv("STRATUM_TEST_SET", "value")
	t.Setenv("STRATUM_TEST_EMPTY", "")

	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"set variable", "x: ${STRATUM_TEST_SET}", "x: value"},
		{"unset variable", "x: ${STRATUM_TEST_UNSET}", "x: "},
		{"unset with default", "x: ${STRATUM_TEST_UNSET:-fallback}", "x: fallback"},
		{"empty with default", "x: ${STRATUM_TEST_EMPTY:-fallback}", "x: fallback"},
		{"set ignores default", "x: ${STRATUM_TEST_SET:-fallback}", "x: value"},
		{"multiple", "${STRATUM_TEST_SET}/${STRATUM_TEST_UNSET:-d}", "value/d"},
		{"no pattern", "plain text $HOME", "plain text $HOME"},
		{"malformed braces left alone", "x: ${", "x: ${"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ExpandEnv(tc.input); got != tc.want {
				t.Errorf("ExpandEnv(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}
