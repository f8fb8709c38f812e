// Package structpath reads and writes JSON dynamic values (map[string]any,
// []any and scalars) by dotted structural path, e.g.
// "data.indexingList[0].entries".
package structpath

import (
	"fmt"
	"strconv"
	"strings"
)

// Step is one parsed path element: an object key or an array index.
type Step struct {
	Key     string
	Index   int
	IsIndex bool
}

func (s Step) String() string {
	if s.IsIndex {
		return "[" + strconv.Itoa(s.Index) + "]"
	}
	return s.Key
}

// Parse splits a dotted path with optional bracketed indices into steps.
func Parse(path string) ([]Step, error) {
	if path == "" {
		return nil, fmt.Errorf("empty path")
	}

	var steps []Step
	for _, part := range strings.Split(path, ".") {
		if part == "" {
			return nil, fmt.Errorf("path %q: empty segment", path)
		}
		key := part
		rest := ""
		if i := strings.IndexByte(part, '['); i >= 0 {
			key, rest = part[:i], part[i:]
		}
		if key != "" {
			steps = append(steps, Step{Key: key})
		}
		for rest != "" {
			end := strings.IndexByte(rest, ']')
			if rest[0] != '[' || end < 0 {
				return nil, fmt.Errorf("path %q: malformed index in %q", path, part)
			}
			n, err := strconv.Atoi(rest[1:end])
			if err != nil || n < 0 {
				return nil, fmt.Errorf("path %q: invalid index %q", path, rest[1:end])
			}
			steps = append(steps, Step{Index: n, IsIndex: true})
			rest = rest[end+1:]
		}
	}
	return steps, nil
}

// Get resolves path against root. The boolean is false when any step is
// missing or crosses a value of the wrong shape.
func Get(root any, path string) (any, bool) {
	steps, err := Parse(path)
	if err != nil {
		return nil, false
	}
	return walk(root, steps)
}

func walk(node any, steps []Step) (any, bool) {
	for _, s := range steps {
		if s.IsIndex {
			arr, ok := node.([]any)
			if !ok || s.Index >= len(arr) {
				return nil, false
			}
			node = arr[s.Index]
			continue
		}
		m, ok := node.(map[string]any)
		if !ok {
			return nil, false
		}
		node, ok = m[s.Key]
		if !ok {
			return nil, false
		}
	}
	return node, true
}

// Set assigns value at path inside root, creating intermediate maps and
// arrays as needed. Scalars standing in the way are replaced.
func Set(root map[string]any, path string, value any) error {
	if root == nil {
		return fmt.Errorf("set %q: nil root", path)
	}
	steps, err := Parse(path)
	if err != nil {
		return err
	}
	if steps[0].IsIndex {
		return fmt.Errorf("set %q: path must start with a key", path)
	}
	child := setAt(root[steps[0].Key], steps[1:], value)
	root[steps[0].Key] = child
	return nil
}

func setAt(node any, steps []Step, value any) any {
	if len(steps) == 0 {
		return value
	}
	s := steps[0]
	if s.IsIndex {
		arr, _ := node.([]any)
		for len(arr) <= s.Index {
			arr = append(arr, nil)
		}
		arr[s.Index] = setAt(arr[s.Index], steps[1:], value)
		return arr
	}
	m, ok := node.(map[string]any)
	if !ok {
		m = map[string]any{}
	}
	m[s.Key] = setAt(m[s.Key], steps[1:], value)
	return m
}

// Delete removes the value at path. It reports whether anything was removed.
// Only map keys can be deleted; array elements are left in place.
func Delete(root map[string]any, path string) bool {
	steps, err := Parse(path)
	if err != nil {
		return false
	}
	last := steps[len(steps)-1]
	if last.IsIndex {
		return false
	}
	parent, ok := walk(root, steps[:len(steps)-1])
	if !ok {
		return false
	}
	m, ok := parent.(map[string]any)
	if !ok {
		return false
	}
	if _, exists := m[last.Key]; !exists {
		return false
	}
	delete(m, last.Key)
	return true
}

// Clone deep-copies maps and slices of a JSON dynamic value. Other values
// are returned as-is.
func Clone(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[k] = Clone(child)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = Clone(child)
		}
		return out
	default:
		return v
	}
}
