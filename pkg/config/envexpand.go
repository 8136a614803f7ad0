package config

import "os"

// expandEnv rewrites $VAR and ${VAR} references in s using getenv, without
// touching shell-special forms ($?, $@, $1, $(cmd)) that commonly appear
// literally inside YAML comments and regex snippets. A '$' preceded by an
// odd run of backslashes is treated as escaped and left untouched.
func expandEnv(s string, getenv func(string) string) string {
	if s == "" {
		return s
	}

	out := make([]byte, 0, len(s))
	changed := false

	for i := 0; i < len(s); i++ {
		if s[i] != '$' {
			out = append(out, s[i])
			continue
		}
		if precededByOddBackslashes(s, i) {
			out = append(out, '$')
			continue
		}
		if i+1 >= len(s) {
			out = append(out, '$')
			continue
		}

		if s[i+1] == '{' {
			end := indexFrom(s, '}', i+2)
			if end == -1 {
				out = append(out, '$')
				continue
			}
			name := s[i+2 : end]
			if validVarName(name) {
				out = append(out, getenv(name)...)
				changed = true
				i = end
				continue
			}
			out = append(out, s[i:end+1]...)
			i = end
			continue
		}

		if isVarNameStart(s[i+1]) {
			j := i + 2
			for j < len(s) && isVarNameChar(s[j]) {
				j++
			}
			out = append(out, getenv(s[i+1:j])...)
			changed = true
			i = j - 1
			continue
		}

		out = append(out, '$')
	}

	if !changed {
		return s
	}
	return string(out)
}

// ExpandEnv applies expandEnv against the process environment. Used by
// pkg/config to resolve $VAR / ${VAR} references in loaded YAML values.
func ExpandEnv(s string) string {
	return expandEnv(s, os.Getenv)
}

func indexFrom(s string, b byte, start int) int {
	for i := start; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}

func isVarNameStart(b byte) bool {
	return (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z') || b == '_'
}

func isVarNameChar(b byte) bool {
	return isVarNameStart(b) || (b >= '0' && b <= '9')
}

func validVarName(name string) bool {
	if name == "" || !isVarNameStart(name[0]) {
		return false
	}
	for i := 1; i < len(name); i++ {
		if !isVarNameChar(name[i]) {
			return false
		}
	}
	return true
}

func precededByOddBackslashes(s string, dollarIdx int) bool {
	n := 0
	for i := dollarIdx - 1; i >= 0 && s[i] == '\\'; i-- {
		n++
	}
	return n%2 == 1
}
