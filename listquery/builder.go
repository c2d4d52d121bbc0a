// Package listquery builds list queries from raw HTTP query parameters.
//
// A Builder starts from a Collection and the caller's raw parameters and is
// refined through chained calls: free-text search, equality filtering,
// sorting, pagination, field projection and relation population. The
// refinements only change an in-memory Query; the store is contacted when the
// caller runs Find (fetch one page) or PaginationInfo (count matches).
//
// Malformed parameters never make a refinement fail. They fall back to
// defaults: page 1, limit 10, sort by newest first, and a projection that
// hides the internal version field. The only error source is the Collection.
//
//	b := listquery.New(posts, listquery.ParamsFromValues(r.URL.Query())).
//		Search("title", "description").
//		Filter().
//		Sort().
//		Paginate().
//		Fields().
//		Populate([]string{"creatorId"}, map[string]string{"creatorId": "name email"})
//	docs, err := b.Find(ctx)
//	meta, err := b.PaginationInfo(ctx)
//
// A Builder belongs to one request and is not safe for concurrent use.
package listquery

import (
	"context"
	"strings"
)

// Default names of the bookkeeping fields the projection rules care about.
const (
	DefaultSecretField  = "password"
	DefaultVersionField = "__v"
)

// Pagination is the metadata returned next to a page of results.
type Pagination struct {
	Total     int64 `json:"total" example:"45"`
	Limit     int   `json:"limit" example:"10"`
	Page      int   `json:"page" example:"1"`
	TotalPage int   `json:"totalPage" example:"5"`
}

// Option customizes a Builder.
type Option func(*Builder)

// WithSecretField names the field that must never leave the store.
func WithSecretField(name string) Option {
	return func(b *Builder) { b.secretField = name }
}

// WithVersionField names the bookkeeping field hidden by the default projection.
func WithVersionField(name string) Option {
	return func(b *Builder) { b.versionField = name }
}

// Builder refines a Query over a Collection. Every refinement returns the
// same Builder so calls can be chained in any order.
type Builder struct {
	coll         Collection
	opts         Options
	query        Query
	secretField  string
	versionField string
	searched     bool
	filtered     bool
}

// New creates a Builder. It never fails; see ParseOptions for how malformed
// parameters are resolved.
func New(coll Collection, raw Params, options ...Option) *Builder {
	b := &Builder{
		coll:         coll,
		opts:         ParseOptions(raw),
		secretField:  DefaultSecretField,
		versionField: DefaultVersionField,
	}
	for _, o := range options {
		o(b)
	}
	return b
}

// Options returns the resolved parameters.
func (b *Builder) Options() Options {
	return b.opts
}

// Query returns a copy of the query description built so far.
func (b *Builder) Query() Query {
	return b.query.clone()
}

// Search adds an OR of case-insensitive matches of searchTerm against each of
// fields. It is a no-op when searchTerm is absent or empty, when no field
// is given, or when a search was already applied.
func (b *Builder) Search(fields ...string) *Builder {
	term := b.opts.SearchTerm
	if term == "" || len(fields) == 0 || b.searched {
		return b
	}
	b.searched = true
	or := make(Or, 0, len(fields))
	for _, f := range fields {
		or = append(or, Condition{Field: f, Op: OpMatch, Value: term})
	}
	b.query.Filter = append(b.query.Filter, or)
	return b
}

// Filter turns every non-reserved parameter into an equality condition.
// Conditions are ANDed with each other and with any search predicate.
// Calling it again adds nothing.
func (b *Builder) Filter() *Builder {
	if b.filtered {
		return b
	}
	b.filtered = true
	for _, k := range b.opts.FilterKeys() {
		b.query.Filter = append(b.query.Filter, Condition{Field: k, Op: OpEq, Value: b.opts.Filters[k]})
	}
	return b
}

// Sort applies the requested compound order. A leading "-" means descending.
// Entries without a field name are dropped, and when none remain the
// default order applies.
func (b *Builder) Sort() *Builder {
	fields := make([]SortField, 0, len(b.opts.Sort))
	for _, entry := range b.opts.Sort {
		entry = strings.TrimSpace(entry)
		desc := strings.HasPrefix(entry, "-")
		name := strings.TrimSpace(strings.TrimPrefix(entry, "-"))
		if name == "" {
			continue
		}
		fields = append(fields, SortField{Field: name, Desc: desc})
	}
	if len(fields) == 0 {
		fields = []SortField{{Field: strings.TrimPrefix(DefaultSort, "-"), Desc: strings.HasPrefix(DefaultSort, "-")}}
	}
	b.query.Sort = fields
	return b
}

// Paginate applies skip and limit for the requested page. Any positive limit
// is accepted.
func (b *Builder) Paginate() *Builder {
	b.query.Skip = b.opts.Skip()
	b.query.Limit = b.opts.Limit
	return b
}

// Fields applies the requested projection. Without a "fields" parameter the
// version field is hidden. The secret field is always excluded.
func (b *Builder) Fields() *Builder {
	tokens := b.opts.Fields
	if len(tokens) == 0 {
		tokens = []string{"-" + b.versionField}
	}

	var proj Projection
	for _, tok := range tokens {
		if strings.HasPrefix(tok, "-") {
			if name := strings.TrimPrefix(tok, "-"); name != "" && !proj.Excludes(name) {
				proj.Exclude = append(proj.Exclude, name)
			}
			continue
		}
		if tok == b.secretField {
			continue
		}
		proj.Include = append(proj.Include, tok)
	}
	if !proj.Excludes(b.secretField) {
		proj.Exclude = append(proj.Exclude, b.secretField)
	}
	b.query.Projection = proj
	return b
}

// Populate expands each relation in paths, projecting the space-separated
// fields listed for it in selects. The secret field is never selected.
func (b *Builder) Populate(paths []string, selects map[string]string) *Builder {
	for _, path := range paths {
		var sel []string
		for _, f := range strings.Fields(selects[path]) {
			if f != b.secretField {
				sel = append(sel, f)
			}
		}
		b.query.Populate = append(b.query.Populate, PopulateSpec{Path: path, Select: sel})
	}
	return b
}

// Find runs the query and returns one page of documents.
func (b *Builder) Find(ctx context.Context) ([]Document, error) {
	return b.coll.Find(ctx, b.Query())
}

// PaginationInfo counts the documents matching the filter as it stands now.
// Sort, skip, limit, projection and population do not affect the count.
// Every call issues a fresh count.
func (b *Builder) PaginationInfo(ctx context.Context) (Pagination, error) {
	total, err := b.coll.Count(ctx, b.Query().Filter)
	if err != nil {
		return Pagination{}, err
	}
	limit := b.opts.Limit
	return Pagination{
		Total:     total,
		Limit:     limit,
		Page:      b.opts.Page,
		TotalPage: int((total + int64(limit) - 1) / int64(limit)),
	}, nil
}
