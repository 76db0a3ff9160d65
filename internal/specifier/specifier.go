// Package specifier resolves templated ensemble paths into ordered member
// lists. A specifier contains exactly one %d placeholder, optionally followed
// by a slice-style filter: "workdir.%d", "out.field_%d[0:1500000].npz",
// "frame_%d[0:100:10].png". The filter bounds apply to the integer matched by
// the placeholder: start inclusive, end exclusive, step on the value.
package specifier

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// placeholder is the single substitution token recognized in templates.
const placeholder = "%d"

// Member is one resolved ensemble member. Members are created by Resolve and
// read-only afterward.
type Member struct {
	// Index is the zero-based position after sorting and filtering.
	Index int
	// ID is the integer the placeholder matched on disk.
	ID int
	// Path is the matched filesystem entry.
	Path string
}

// Error reports a specifier resolution failure. It is distinct from plugin
// and I/O errors so callers can short-circuit before any work begins.
type Error struct {
	Template string
	Reason   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("specifier %q: %s", e.Template, e.Reason)
}

func errorf(template, format string, args ...any) *Error {
	return &Error{Template: template, Reason: fmt.Sprintf(format, args...)}
}

// rangeFilter is the parsed [start:end:step] suffix. nil bounds mean open.
type rangeFilter struct {
	start, end *int
	step       int
}

func (f *rangeFilter) admits(id int) bool {
	if f == nil {
		return true
	}
	if f.start != nil && id < *f.start {
		return false
	}
	if f.end != nil && id >= *f.end {
		return false
	}
	if f.step > 1 {
		base := 0
		if f.start != nil {
			base = *f.start
		}
		if (id-base)%f.step != 0 {
			return false
		}
	}
	return true
}

// template is a validated specifier split around its placeholder.
type template struct {
	raw    string
	prefix string
	suffix string
	filter *rangeFilter
}

func parse(raw string) (*template, error) {
	n := strings.Count(raw, placeholder)
	if n == 0 {
		return nil, errorf(raw, "template has no %s placeholder", placeholder)
	}
	if n > 1 {
		return nil, errorf(raw, "template has %d placeholders, expected exactly one", n)
	}

	at := strings.Index(raw, placeholder)
	t := &template{raw: raw, prefix: raw[:at], suffix: raw[at+len(placeholder):]}

	// Optional bracket filter immediately after the placeholder.
	if strings.HasPrefix(t.suffix, "[") {
		close := strings.Index(t.suffix, "]")
		if close < 0 {
			return nil, errorf(raw, "unterminated range filter")
		}
		filter, err := parseFilter(raw, t.suffix[1:close])
		if err != nil {
			return nil, err
		}
		t.filter = filter
		t.suffix = t.suffix[close+1:]
	}
	return t, nil
}

func parseFilter(raw, body string) (*rangeFilter, error) {
	parts := strings.Split(body, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return nil, errorf(raw, "range filter %q must be start:end or start:end:step", body)
	}
	f := &rangeFilter{step: 1}
	bound := func(s string) (*int, error) {
		if s == "" {
			return nil, nil
		}
		v, err := strconv.Atoi(s)
		if err != nil {
			return nil, errorf(raw, "range filter bound %q is not an integer", s)
		}
		return &v, nil
	}
	var err error
	if f.start, err = bound(parts[0]); err != nil {
		return nil, err
	}
	if f.end, err = bound(parts[1]); err != nil {
		return nil, err
	}
	if len(parts) == 3 && parts[2] != "" {
		step, err := strconv.Atoi(parts[2])
		if err != nil || step < 1 {
			return nil, errorf(raw, "range filter step %q must be a positive integer", parts[2])
		}
		f.step = step
	}
	return f, nil
}

// id extracts the integer the placeholder matched in path, or false when the
// substituted text is not an unsigned integer.
func (t *template) id(path string) (int, bool) {
	if len(path) < len(t.prefix)+len(t.suffix) {
		return 0, false
	}
	if !strings.HasPrefix(path, t.prefix) || !strings.HasSuffix(path, t.suffix) {
		return 0, false
	}
	mid := path[len(t.prefix) : len(path)-len(t.suffix)]
	if mid == "" {
		return 0, false
	}
	v, err := strconv.Atoi(mid)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

// escapeGlob neutralizes pattern metacharacters in the template's literal
// text so only the placeholder expands during matching.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', '\\':
			b.WriteRune('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Options restricts resolution beyond the template's own range filter.
type Options struct {
	// Include, when non-nil, keeps only members whose ID is listed. An ID
	// that was not discovered on disk is a resolution error.
	Include []int
}

// Resolve expands the template against the filesystem and returns the
// matching members sorted ascending by placeholder value, with zero-based
// indices assigned after sorting. Resolution order is therefore stable
// across runs. It returns *Error when the template is malformed, nothing
// matches, or a filter selects IDs outside the discovered set.
func Resolve(raw string, opts Options) ([]Member, error) {
	t, err := parse(raw)
	if err != nil {
		return nil, err
	}

	matches, err := filepath.Glob(escapeGlob(t.prefix) + "*" + escapeGlob(t.suffix))
	if err != nil {
		return nil, errorf(raw, "bad glob pattern: %v", err)
	}

	byID := make(map[int]string)
	for _, m := range matches {
		id, ok := t.id(m)
		if !ok || !t.filter.admits(id) {
			continue
		}
		byID[id] = m
	}
	if len(byID) == 0 {
		return nil, errorf(raw, "no ensemble members found")
	}

	if opts.Include != nil {
		kept := make(map[int]string, len(opts.Include))
		for _, id := range opts.Include {
			path, ok := byID[id]
			if !ok {
				return nil, errorf(raw, "filter selects member %d which was not discovered", id)
			}
			kept[id] = path
		}
		byID = kept
	}

	ids := make([]int, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	members := make([]Member, len(ids))
	for i, id := range ids {
		members[i] = Member{Index: i, ID: id, Path: byID[id]}
	}
	return members, nil
}

// ResolveFiles expands a file template relative to an ensemble member's
// directory and returns the matching paths in ascending placeholder order. A
// template without a placeholder resolves to the single named file when it
// exists.
func ResolveFiles(memberDir, raw string) ([]string, error) {
	if !strings.Contains(raw, placeholder) {
		path := filepath.Join(memberDir, raw)
		matches, err := filepath.Glob(path)
		if err != nil || len(matches) == 0 {
			return nil, errorf(raw, "no input files found under %s", memberDir)
		}
		return matches, nil
	}
	members, err := Resolve(filepath.Join(memberDir, raw), Options{})
	if err != nil {
		return nil, err
	}
	files := make([]string, len(members))
	for i, m := range members {
		files[i] = m.Path
	}
	return files, nil
}

// Root returns the static directory prefix of the template, the part before
// the first path element containing the placeholder. Member paths are made
// relative to it when mirroring output trees.
func Root(raw string) string {
	at := strings.Index(raw, placeholder)
	if at < 0 {
		return filepath.Dir(raw)
	}
	return filepath.Dir(raw[:at])
}
