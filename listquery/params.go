package listquery

import (
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// Recognized query-string keys. Every other key is an equality filter.
const (
	KeySearchTerm = "searchTerm"
	KeySort       = "sort"
	KeyPage       = "page"
	KeyLimit      = "limit"
	KeyFields     = "fields"
)

// Defaults applied when a recognized key is absent or malformed.
const (
	DefaultPage  = 1
	DefaultLimit = 10
	DefaultSort  = "-createdAt"
)

var reservedKeys = map[string]bool{
	KeySearchTerm: true,
	KeySort:       true,
	KeyPage:       true,
	KeyLimit:      true,
	KeyFields:     true,
}

// Params is the raw, untyped parameter mapping handed over by the HTTP layer.
// Values are usually strings or string slices, but services may inject numbers
// or structured filter values (e.g. map[string]any{"$gte": 18}).
type Params map[string]any

// ParamsFromValues converts a decoded query string. A key with a single value
// becomes a string; a repeated key becomes a []string.
func ParamsFromValues(values url.Values) Params {
	p := make(Params, len(values))
	for k, vs := range values {
		switch len(vs) {
		case 0:
			continue
		case 1:
			p[k] = vs[0]
		default:
			p[k] = append([]string(nil), vs...)
		}
	}
	return p
}

// Pick returns a copy holding only the given keys, like a query allow-list.
func (p Params) Pick(keys ...string) Params {
	out := make(Params, len(keys))
	for _, k := range keys {
		if v, ok := p[k]; ok {
			out[k] = v
		}
	}
	return out
}

// Options is the typed view of Params with every default already applied.
// It is computed once, at construction, and never changes afterwards.
type Options struct {
	SearchTerm string
	Sort       []string
	Page       int
	Limit      int
	// Fields is nil when the caller did not ask for a projection.
	Fields  []string
	Filters map[string]any
}

// ParseOptions resolves the recognized keys of p. Malformed values never fail:
// they degrade to the documented defaults.
func ParseOptions(p Params) Options {
	opts := Options{
		SearchTerm: toString(p[KeySearchTerm]),
		Sort:       parseSort(p[KeySort]),
		Page:       positiveInt(p[KeyPage], DefaultPage),
		Limit:      positiveInt(p[KeyLimit], DefaultLimit),
		Fields:     splitList(p[KeyFields]),
		Filters:    make(map[string]any),
	}
	for k, v := range p {
		if reservedKeys[k] {
			continue
		}
		opts.Filters[k] = v
	}
	return opts
}

// Skip is the number of entities before the requested page.
func (o Options) Skip() int {
	return (o.Page - 1) * o.Limit
}

// FilterKeys returns the filter keys in a stable order.
func (o Options) FilterKeys() []string {
	keys := make([]string, 0, len(o.Filters))
	for k := range o.Filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func parseSort(v any) []string {
	entries := splitList(v)
	if len(entries) == 0 {
		return []string{DefaultSort}
	}
	return entries
}

// splitList flattens a string or string sequence into trimmed, non-empty
// entries, splitting each entry on commas.
func splitList(v any) []string {
	var raw []string
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		raw = []string{val}
	case []string:
		raw = val
	case []any:
		for _, item := range val {
			raw = append(raw, toString(item))
		}
	default:
		raw = []string{toString(val)}
	}

	var out []string
	for _, entry := range raw {
		for _, part := range strings.Split(entry, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// positiveInt coerces v to a number. Absent, non-numeric, non-finite and
// non-positive values all resolve to def. Fractions are truncated.
func positiveInt(v any, def int) int {
	var f float64
	switch val := v.(type) {
	case int:
		f = float64(val)
	case int32:
		f = float64(val)
	case int64:
		f = float64(val)
	case float64:
		f = val
	case []string:
		if len(val) == 0 {
			return def
		}
		return positiveInt(val[0], def)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return def
		}
		f = parsed
	default:
		return def
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 1 {
		return def
	}
	if f > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(f)
}

func toString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []string:
		if len(val) == 0 {
			return ""
		}
		return val[0]
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}
