package domain

import "maps"

// Context is the data bag threaded through execution. Values are never mutated in
// place: every change produces a new Context.
type Context map[string]any

// Clone returns a shallow copy. Cloning a nil Context yields an empty one.
func (c Context) Clone() Context {
	out := make(Context, len(c))
	maps.Copy(out, c)
	return out
}

// With returns a copy of c with patch applied. A nil value deletes the key.
func (c Context) With(patch map[string]any) Context {
	out := c.Clone()
	for k, v := range patch {
		if v == nil {
			delete(out, k)
			continue
		}
		out[k] = v
	}
	return out
}

// Get returns the value stored at key.
func (c Context) Get(key string) (any, bool) {
	v, ok := c[key]
	return v, ok
}

// String returns the string stored at key, or "" when missing or not a string.
func (c Context) String(key string) string {
	s, _ := c[key].(string)
	return s
}

// DefaultContext builds the initial context when a machine declares no factory:
// a map input is copied, nil yields an empty context and anything else is stored under "input".
func DefaultContext(input any) (Context, error) {
	switch v := input.(type) {
	case nil:
		return Context{}, nil
	case Context:
		return v.Clone(), nil
	case map[string]any:
		return Context(v).Clone(), nil
	default:
		return Context{"input": v}, nil
	}
}
