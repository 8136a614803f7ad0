// Package pathfilter decides which files inside an acquired repository are
// in scope for scanning, based on caller-supplied include/exclude glob lists.
package pathfilter

import (
	"fmt"

	"github.com/gobwas/glob"
)

// Filter tests repository-relative paths against include and exclude globs.
// Exclusion always takes precedence over inclusion.
type Filter struct {
	exclude []glob.Glob
	include []glob.Glob
	// defaultAllow controls the outcome when neither list matches and both
	// are configured (the ambiguous case).
	defaultAllow bool
}

// Option configures a Filter built with New.
type Option func(*Filter) error

// WithExclude adds exclude globs. A path matching any of these is always
// out of scope.
func WithExclude(patterns ...string) Option {
	return func(f *Filter) error {
		for _, p := range patterns {
			g, err := glob.Compile(p, '/')
			if err != nil {
				return fmt.Errorf("invalid exclude glob %q: %w", p, err)
			}
			f.exclude = append(f.exclude, g)
		}
		return nil
	}
}

// WithInclude adds include globs. When any include glob is configured, a
// path must match at least one to be in scope, unless excluded.
func WithInclude(patterns ...string) Option {
	return func(f *Filter) error {
		for _, p := range patterns {
			g, err := glob.Compile(p, '/')
			if err != nil {
				return fmt.Errorf("invalid include glob %q: %w", p, err)
			}
			f.include = append(f.include, g)
		}
		return nil
	}
}

// WithDefaultAllow sets the outcome for a path matched by neither list when
// both are configured. Default is deny.
func WithDefaultAllow() Option {
	return func(f *Filter) error { f.defaultAllow = true; return nil }
}

// New builds a Filter. A Filter with no options allows everything.
func New(opts ...Option) (*Filter, error) {
	f := &Filter{}
	for _, opt := range opts {
		if err := opt(f); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// Allow reports whether path is in scope for scanning.
func (f *Filter) Allow(path string) bool {
	if f == nil {
		return true
	}
	switch {
	case len(f.exclude) == 0 && len(f.include) == 0:
		return true
	case len(f.include) == 0:
		return !matchesAny(f.exclude, path)
	case len(f.exclude) == 0:
		return matchesAny(f.include, path)
	default:
		if matchesAny(f.exclude, path) {
			return false
		}
		if matchesAny(f.include, path) {
			return true
		}
		return f.defaultAllow
	}
}

func matchesAny(globs []glob.Glob, path string) bool {
	for _, g := range globs {
		if g.Match(path) {
			return true
		}
	}
	return false
}
