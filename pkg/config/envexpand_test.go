package config

import "testing"

func TestExpandEnv(t *testing.T) {
	getenv := func(name string) string {
		switch name {
		case "HOME":
			return "/home/scanner"
		case "FOO":
			return "bar"
		}
		return ""
	}

	cases := map[string]string{
		"$HOME/clones":        "/home/scanner/clones",
		"${FOO}baz":           "barbaz",
		`\$HOME`:              `\$HOME`,
		"$? $@ $1 $(cmd)":     "$? $@ $1 $(cmd)",
		"${NOT_CLOSED":        "${NOT_CLOSED",
		"no vars here":        "no vars here",
		"$UNKNOWN_VAR_NOBODY": "",
	}
	for input, want := range cases {
		if got := expandEnv(input, getenv); got != want {
			t.Errorf("expandEnv(%q) = %q, want %q", input, got, want)
		}
	}
}
