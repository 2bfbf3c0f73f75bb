package record

import (
	"strings"
)

// LeaveBlank is the marker users write for "intentionally empty".
const LeaveBlank = "[Leave Blank]"

// Entry is one normalized key with its value and the raw label it came from.
type Entry struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Value string `json:"value"`
}

// Record is an ordered mapping of normalized keys to raw values.
// A Record is never modified after Parse returns it.
type Record struct {
	entries []Entry
	index   map[string]int
}

// Parse converts "Label: Value" lines into a Record. It never fails: lines
// without a colon, or whose label normalizes to nothing, are dropped. The first
// colon separates label from value, so values keep any further colons. When two
// labels normalize to the same key the later value wins and the key keeps its
// first position.
func Parse(text string) *Record {
	r := &Record{index: make(map[string]int)}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimSuffix(line, "\r"))
		label, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}

		key := Normalize(label)
		if key == "" {
			continue
		}

		value = strings.TrimSpace(value)
		if strings.EqualFold(value, LeaveBlank) {
			value = ""
		}

		r.set(Entry{Key: key, Label: strings.TrimSpace(label), Value: value})
	}

	return r
}

func (r *Record) set(e Entry) {
	if i, ok := r.index[e.Key]; ok {
		r.entries[i] = e
		return
	}
	r.index[e.Key] = len(r.entries)
	r.entries = append(r.entries, e)
}

// Len returns the number of keys
func (r *Record) Len() int {
	if r == nil {
		return 0
	}
	return len(r.entries)
}

// Keys returns the normalized keys in insertion order
func (r *Record) Keys() []string {
	if r == nil {
		return nil
	}
	keys := make([]string, len(r.entries))
	for i, e := range r.entries {
		keys[i] = e.Key
	}
	return keys
}

// Get returns the value stored under a normalized key
func (r *Record) Get(key string) (string, bool) {
	if r == nil {
		return "", false
	}
	i, ok := r.index[key]
	if !ok {
		return "", false
	}
	return r.entries[i].Value, true
}

// Lookup normalizes label before looking it up
func (r *Record) Lookup(label string) (string, bool) {
	return r.Get(Normalize(label))
}

// Entries returns a copy of the entries in insertion order
func (r *Record) Entries() []Entry {
	if r == nil {
		return nil
	}
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Map returns the record as a plain map
func (r *Record) Map() map[string]string {
	m := make(map[string]string, r.Len())
	for _, e := range r.Entries() {
		m[e.Key] = e.Value
	}
	return m
}

// With returns a copy of r with key set to value. The receiver is untouched.
func (r *Record) With(label, value string) *Record {
	out := &Record{index: make(map[string]int, r.Len()+1)}
	for _, e := range r.Entries() {
		out.set(e)
	}
	if key := Normalize(label); key != "" {
		out.set(Entry{Key: key, Label: label, Value: value})
	}
	return out
}

// Equal reports whether both records hold the same keys, in the same order,
// with the same values.
func (r *Record) Equal(other *Record) bool {
	if r.Len() != other.Len() {
		return false
	}
	a, b := r.Entries(), other.Entries()
	for i := range a {
		if a[i].Key != b[i].Key || a[i].Value != b[i].Value {
			return false
		}
	}
	return true
}

// String serializes the record back into "key: value" lines. Parsing the
// result yields an equal record.
func (r *Record) String() string {
	var b strings.Builder
	for _, e := range r.Entries() {
		v := e.Value
		if v == "" {
			v = LeaveBlank
		}
		b.WriteString(e.Key)
		b.WriteString(": ")
		b.WriteString(v)
		b.WriteByte('\n')
	}
	return b.String()
}
