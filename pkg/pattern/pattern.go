// Package pattern applies a declarative, data-driven set of regular
// expressions to a text buffer and produces localized raw matches. The
// pattern set itself lives in registry.go as data — nothing here hardcodes
// a secret type into the engine.
package pattern

import (
	re2 "github.com/wasilibs/go-re2"
)

// Category groups patterns by the kind of issue they flag.
type Category string

const (
	CategorySecrets        Category = "secrets"
	CategoryVulnerabilities Category = "vulnerabilities"
	CategoryConfigurations  Category = "configurations"
	CategoryHeaders         Category = "headers"
	CategoryFiles           Category = "files"
)

// Severity ranks a finding's importance. Ordered from least to most severe
// for comparison purposes; see Severity.MoreSevereThan.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityCritical:
		return "critical"
	case SeverityHigh:
		return "high"
	case SeverityMedium:
		return "medium"
	case SeverityLow:
		return "low"
	default:
		return "info"
	}
}

// MoreSevereThan reports whether s ranks above other.
func (s Severity) MoreSevereThan(other Severity) bool { return s > other }

// Validator is a pure predicate over a candidate matched value. A failing
// validator does not drop the match — it is surfaced to the confidence
// scorer as negative evidence.
type Validator func(value string) (bool, error)

// Def is one declarative pattern row, as loaded at process init.
type Def struct {
	ID             string
	Name           string
	Category       Category
	Severity       Severity
	Regex          string
	Validator      Validator
	MinLen         int
	MaxLen         int
	BaseConfidence float64
}

// Pattern is an immutable, compiled pattern ready for matching.
type Pattern struct {
	Def
	compiled *re2.Regexp
}

// Registry is the immutable, process-wide set of compiled patterns.
type Registry struct {
	patterns []*Pattern
	byID     map[string]*Pattern
}

// NewRegistry compiles defs into a Registry. Intended to be called once at
// process init with the data in registry.go (or a caller-supplied override
// for tests).
func NewRegistry(defs []Def) (*Registry, error) {
	r := &Registry{byID: make(map[string]*Pattern, len(defs))}
	for _, def := range defs {
		re, err := re2.Compile(def.Regex)
		if err != nil {
			return nil, &CompileError{PatternID: def.ID, Err: err}
		}
		p := &Pattern{Def: def, compiled: re}
		r.patterns = append(r.patterns, p)
		r.byID[def.ID] = p
	}
	return r, nil
}

// CompileError reports a pattern whose regex failed to compile.
type CompileError struct {
	PatternID string
	Err       error
}

func (e *CompileError) Error() string { return "compiling pattern " + e.PatternID + ": " + e.Err.Error() }
func (e *CompileError) Unwrap() error { return e.Err }

// Lookup returns the pattern with the given id, or nil.
func (r *Registry) Lookup(id string) *Pattern {
	return r.byID[id]
}

// Options configures a Scan call.
type Options struct {
	Categories         []Category
	ConfidenceThreshold float64
	MaxMatches          int
}

const defaultContextWindow = 100

// RawMatch is one located occurrence of a pattern in a buffer, before
// scoring or deduplication.
type RawMatch struct {
	Pattern        *Pattern
	Value          string
	ByteOffset     int
	Line           int
	Column         int
	ContextBefore  string
	ContextAfter   string
	ValidatorOK    bool
	ValidatorErr   error
	ValidatorRan   bool
}

// Scan applies every registered pattern whose category is requested against
// buffer, returning every non-overlapping match per pattern up to
// opts.MaxMatches (0 means unbounded).
func (r *Registry) Scan(buffer []byte, opts Options) []RawMatch {
	wanted := categorySet(opts.Categories)
	var out []RawMatch

	for _, p := range r.patterns {
		if len(wanted) > 0 {
			if _, ok := wanted[p.Category]; !ok {
				continue
			}
		}
		locs := p.compiled.FindAllIndex(buffer, -1)
		for i, loc := range locs {
			if opts.MaxMatches > 0 && i >= opts.MaxMatches {
				break
			}
			start, end := loc[0], loc[1]
			value := string(buffer[start:end])
			if p.MinLen > 0 && len(value) < p.MinLen {
				continue
			}
			if p.MaxLen > 0 && len(value) > p.MaxLen {
				continue
			}
			line, col := locate(buffer, start)
			m := RawMatch{
				Pattern:       p,
				Value:         value,
				ByteOffset:    start,
				Line:          line,
				Column:        col,
				ContextBefore: contextWindow(buffer, start, -defaultContextWindow),
				ContextAfter:  contextWindow(buffer, end, defaultContextWindow),
			}
			if p.Validator != nil {
				m.ValidatorRan = true
				m.ValidatorOK, m.ValidatorErr = safeValidate(p.Validator, value)
			}
			out = append(out, m)
		}
	}
	return out
}

func safeValidate(v Validator, value string) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok, err = false, &ValidatorPanic{Recovered: r}
		}
	}()
	return v(value)
}

// ValidatorPanic wraps a recovered panic from a pattern's validator so a
// single bad validator cannot take a scan down.
type ValidatorPanic struct{ Recovered any }

func (e *ValidatorPanic) Error() string { return "validator panicked" }

func categorySet(cats []Category) map[Category]struct{} {
	if len(cats) == 0 {
		return nil
	}
	set := make(map[Category]struct{}, len(cats))
	for _, c := range cats {
		set[c] = struct{}{}
	}
	return set
}

// locate converts a byte offset into a 1-based line and column, counting
// the column from the character after the last newline.
func locate(buffer []byte, offset int) (line, column int) {
	line = 1
	lastNewline := -1
	for i := 0; i < offset && i < len(buffer); i++ {
		if buffer[i] == '\n' {
			line++
			lastNewline = i
		}
	}
	return line, offset - lastNewline
}

// contextWindow returns up to width bytes of context around pos (negative
// width looks backward from pos, positive forward), truncated at buffer
// edges.
func contextWindow(buffer []byte, pos, width int) string {
	if width < 0 {
		start := pos + width
		if start < 0 {
			start = 0
		}
		return string(buffer[start:pos])
	}
	end := pos + width
	if end > len(buffer) {
		end = len(buffer)
	}
	if pos > len(buffer) {
		pos = len(buffer)
	}
	return string(buffer[pos:end])
}

