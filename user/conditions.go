package user

import "fmt"

// Condition is one extra equality predicate for a user lookup.
type Condition struct {
	Field string
	Value any
}

// Conditions is an ordered list of equality predicates.
type Conditions []Condition

// Where starts a condition list.
func Where(field string, value any) Conditions {
	return Conditions{{Field: field, Value: value}}
}

// And appends a predicate and returns the extended list.
func (c Conditions) And(field string, value any) Conditions {
	out := make(Conditions, len(c), len(c)+1)
	copy(out, c)
	return append(out, Condition{Field: field, Value: value})
}

// Fields returns the predicate field names in order.
func (c Conditions) Fields() []string {
	out := make([]string, len(c))
	for i, cond := range c {
		out[i] = cond.Field
	}
	return out
}

// Merge returns every predicate of base followed by those of extra. Nothing
// in extra replaces a base predicate: a field named in both lists must match
// both values. Exact repeats are kept once.
func Merge(base, extra Conditions) Conditions {
	out := make(Conditions, 0, len(base)+len(extra))
	seen := make(map[string]struct{}, len(base)+len(extra))
	for _, list := range []Conditions{base, extra} {
		for _, cond := range list {
			key := cond.Field + "\x00" + fmt.Sprint(cond.Value)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, cond)
		}
	}
	return out
}
