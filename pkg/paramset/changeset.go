package paramset

import (
	"fmt"
	"reflect"

	"github.com/spf13/cast"
)

// ChangeSet is the ordered set of unsaved edits of one paramset, keyed by
// parameter id. An id is present iff its proposed value differs from the
// parameter's current value, so IsDirty is exactly "set is non-empty".
//
// A ChangeSet is not safe for concurrent use; its owner serializes access.
type ChangeSet struct {
	keys   []string
	values map[string]any
}

// NewChangeSet returns an empty change set.
func NewChangeSet() *ChangeSet {
	return &ChangeSet{values: make(map[string]any)}
}

// Set stages proposed for id unless it equals current, in which case any
// existing entry for id is removed.
func (c *ChangeSet) Set(id string, proposed, current any) {
	if c.values == nil {
		c.values = make(map[string]any)
	}
	if Equal(proposed, current) {
		c.remove(id)
		return
	}
	if _, ok := c.values[id]; !ok {
		c.keys = append(c.keys, id)
	}
	c.values[id] = proposed
}

// Stage unconditionally records proposed for id. Used for momentary
// actions which have no current value to compare against.
func (c *ChangeSet) Stage(id string, proposed any) {
	if c.values == nil {
		c.values = make(map[string]any)
	}
	if _, ok := c.values[id]; !ok {
		c.keys = append(c.keys, id)
	}
	c.values[id] = proposed
}

// Delete drops the pending edit for id, if any.
func (c *ChangeSet) Delete(id string) {
	c.remove(id)
}

func (c *ChangeSet) remove(id string) {
	if _, ok := c.values[id]; !ok {
		return
	}
	delete(c.values, id)
	for i, k := range c.keys {
		if k == id {
			c.keys = append(c.keys[:i], c.keys[i+1:]...)
			break
		}
	}
}

// IsDirty reports whether any edit is pending.
func (c *ChangeSet) IsDirty() bool {
	return c != nil && len(c.values) > 0
}

// Len returns the number of pending edits.
func (c *ChangeSet) Len() int {
	if c == nil {
		return 0
	}
	return len(c.values)
}

// Get returns the pending value for id.
func (c *ChangeSet) Get(id string) (any, bool) {
	if c == nil {
		return nil, false
	}
	v, ok := c.values[id]
	return v, ok
}

// EffectiveValue returns the pending value of p if present, else its current value.
func (c *ChangeSet) EffectiveValue(p *Parameter) any {
	if v, ok := c.Get(p.ID); ok {
		return v
	}
	return p.CurrentValue
}

// Clear drops every pending edit.
func (c *ChangeSet) Clear() {
	c.keys = nil
	c.values = make(map[string]any)
}

// Keys returns the pending ids in insertion order.
func (c *ChangeSet) Keys() []string {
	if c == nil {
		return nil
	}
	out := make([]string, len(c.keys))
	copy(out, c.keys)
	return out
}

// Values returns a copy of the pending edits.
func (c *ChangeSet) Values() map[string]any {
	out := make(map[string]any, c.Len())
	if c == nil {
		return out
	}
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

// Clone returns an independent copy.
func (c *ChangeSet) Clone() *ChangeSet {
	out := NewChangeSet()
	if c == nil {
		return out
	}
	out.keys = c.Keys()
	for k, v := range c.values {
		out.values[k] = v
	}
	return out
}

// Equal reports whether both sets hold the same ids, order and values.
func (c *ChangeSet) Equal(other *ChangeSet) bool {
	if c.Len() != other.Len() {
		return false
	}
	ak, bk := c.Keys(), other.Keys()
	for i := range ak {
		if ak[i] != bk[i] {
			return false
		}
		av, _ := c.Get(ak[i])
		bv, _ := other.Get(bk[i])
		if !reflect.DeepEqual(av, bv) {
			return false
		}
	}
	return true
}

// Rebase recomputes every pending edit against the current values of a
// freshly fetched schema. Entries that now equal current, or whose
// parameter no longer exists or is read-only, are dropped.
func (c *ChangeSet) Rebase(schema *FormSchema) {
	for _, id := range c.Keys() {
		v := c.values[id]
		p, ok := schema.Parameter(id)
		if !ok || !p.Writable {
			c.remove(id)
			continue
		}
		if p.Type == TypeAction {
			continue
		}
		c.Set(id, v, p.CurrentValue)
	}
}

// Equal compares two parameter values structurally. Numbers compare by
// value regardless of their Go representation, so an int 5 staged locally
// equals the float64 5 decoded from the wire.
func Equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if isNumber(a) && isNumber(b) {
		fa, errA := cast.ToFloat64E(a)
		fb, errB := cast.ToFloat64E(b)
		return errA == nil && errB == nil && fa == fb
	}
	switch av := a.(type) {
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			w, ok := bv[k]
			if !ok || !Equal(v, w) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(a, b)
}

func isNumber(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	}
	return false
}

// FormatValue renders a value for change summaries.
func FormatValue(p *Parameter, v any) string {
	if v == nil {
		return "–"
	}
	if p != nil && p.Type == TypeEnum && len(p.Options) > 0 {
		if i, err := cast.ToIntE(v); err == nil && i >= 0 && i < len(p.Options) {
			return p.Options[i]
		}
	}
	if p != nil && p.Percent {
		if f, err := cast.ToFloat64E(v); err == nil {
			return fmt.Sprintf("%g%%", f*100)
		}
	}
	s := cast.ToString(v)
	if p != nil && p.Unit != "" && s != "" {
		return s + " " + p.Unit
	}
	return s
}

// Summary builds one "label: old → new" line per pending edit, in
// insertion order. Old is the saved value; edits that leave it unchanged
// are left out.
func Summary(schema *FormSchema, changes *ChangeSet) []string {
	lines := make([]string, 0, changes.Len())
	for _, id := range changes.Keys() {
		v, _ := changes.Get(id)
		p, ok := schema.Parameter(id)
		if !ok {
			lines = append(lines, fmt.Sprintf("%s: %s", id, cast.ToString(v)))
			continue
		}
		label := p.Label
		if label == "" {
			label = p.ID
		}
		if p.Type == TypeAction {
			lines = append(lines, label)
			continue
		}
		old := p.CurrentValue
		if p.Staged {
			old = p.SavedValue
			if Equal(old, v) {
				// reverts a session-held edit, nothing changes on the device
				continue
			}
		}
		lines = append(lines, fmt.Sprintf("%s: %s → %s", label, FormatValue(p, old), FormatValue(p, v)))
	}
	// Edits held by the session only, e.g. restored by a redo.
	for _, p := range schema.Parameters() {
		if !p.Staged {
			continue
		}
		if _, ok := changes.Get(p.ID); ok {
			continue
		}
		label := p.Label
		if label == "" {
			label = p.ID
		}
		lines = append(lines, fmt.Sprintf("%s: %s → %s", label, FormatValue(&p, p.SavedValue), FormatValue(&p, p.CurrentValue)))
	}
	return lines
}
