package listquery

import (
	"context"
	"strings"
)

// Operator names how a Condition compares a field with its value.
type Operator string

const (
	// OpEq is an exact-match comparison. Structured values (maps, slices) are
	// handed to the Collection untouched; the builder does not interpret them.
	OpEq Operator = "eq"
	// OpMatch is a case-insensitive substring match.
	OpMatch Operator = "match"
)

// Predicate is a node of the filter tree: a Condition, an And or an Or.
type Predicate interface {
	predicate()
}

// Condition compares a single field.
type Condition struct {
	Field string
	Op    Operator
	Value any
}

// And holds predicates that must all hold. An empty And matches everything.
type And []Predicate

// Or holds predicates of which at least one must hold.
type Or []Predicate

func (Condition) predicate() {}
func (And) predicate()       {}
func (Or) predicate()        {}

// SortField is one key of a compound sort, in priority order.
type SortField struct {
	Field string
	Desc  bool
}

// Projection is an inclusion/exclusion list over top-level fields.
// When Include is non-empty only those fields (minus Exclude) are returned;
// otherwise every field except Exclude is returned.
type Projection struct {
	Include []string
	Exclude []string
}

// String renders the space-delimited form, e.g. "name email -password".
func (p Projection) String() string {
	parts := make([]string, 0, len(p.Include)+len(p.Exclude))
	parts = append(parts, p.Include...)
	for _, f := range p.Exclude {
		parts = append(parts, "-"+f)
	}
	return strings.Join(parts, " ")
}

// Excludes reports whether field is explicitly excluded.
func (p Projection) Excludes(field string) bool {
	for _, f := range p.Exclude {
		if f == field {
			return true
		}
	}
	return false
}

// PopulateSpec expands the reference stored in Path into the referenced
// entity, keeping only the Select fields of it (all fields when empty).
type PopulateSpec struct {
	Path   string
	Select []string
}

// Query is a lazily-executed description of a list request. Nothing in it
// touches the backing store until a Collection runs it.
type Query struct {
	Filter     And
	Sort       []SortField
	Skip       int
	Limit      int // 0 means no limit
	Projection Projection
	Populate   []PopulateSpec
}

// Document is one fetched entity keyed by API field name.
type Document map[string]any

// Collection is the backing store the builder refines queries against.
// Implementations must not retain the Query or filter they are given.
type Collection interface {
	Find(ctx context.Context, q Query) ([]Document, error)
	Count(ctx context.Context, filter And) (int64, error)
}

func (q Query) clone() Query {
	out := q
	out.Filter = append(And(nil), q.Filter...)
	out.Sort = append([]SortField(nil), q.Sort...)
	out.Projection = Projection{
		Include: append([]string(nil), q.Projection.Include...),
		Exclude: append([]string(nil), q.Projection.Exclude...),
	}
	out.Populate = nil
	for _, p := range q.Populate {
		out.Populate = append(out.Populate, PopulateSpec{Path: p.Path, Select: append([]string(nil), p.Select...)})
	}
	return out
}
