package listquery

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	// `sqlx` gives us MapScan over database/sql rows, which suits schema-less
	// projections where the selected columns change per request.
	"github.com/jmoiron/sqlx"

	"github.com/user/postboard-go/apperror"
)

// Column maps an API field name to a SQL column. Type is the Postgres type
// used to cast filter values (e.g. "boolean", "integer", "timestamptz");
// an empty Type compares as text.
type Column struct {
	Field string
	Name  string
	Type  string
}

// Relation describes a reference that Populate can expand.
type Relation struct {
	// Column holds the foreign key on the owning table.
	Column string
	Target *Table
	// TargetKey is the referenced column on Target. Defaults to "id".
	TargetKey string
}

// Table describes a SQL table in terms of API field names. Only listed
// columns can be selected, filtered or sorted on, so secrets are kept out
// simply by not listing them.
type Table struct {
	Name      string
	Columns   []Column
	Relations map[string]Relation
}

func (t *Table) column(field string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Field == field {
			return c, true
		}
	}
	return Column{}, false
}

// idField is the document key every projection keeps.
const idField = "id"

// Casting these types from text is lossless, so filter values bound as text
// can be compared with the column's native ordering.
var castableTypes = map[string]bool{
	"boolean":     true,
	"smallint":    true,
	"integer":     true,
	"bigint":      true,
	"numeric":     true,
	"date":        true,
	"timestamptz": true,
}

// Types selected as text so that MapScan returns printable values.
var textSelectTypes = map[string]bool{
	"uuid": true,
}

// PostgresCollection runs list queries against one table.
type PostgresCollection struct {
	db    *sqlx.DB
	table *Table
}

// NewPostgresCollection creates a Collection over table.
func NewPostgresCollection(db *sqlx.DB, table *Table) *PostgresCollection {
	return &PostgresCollection{db: db, table: table}
}

// Find implements Collection. Database errors are returned unmodified.
func (c *PostgresCollection) Find(ctx context.Context, q Query) ([]Document, error) {
	query, args, err := c.selectSQL(q)
	if err != nil {
		return nil, err
	}
	rows, err := c.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	populated := make(map[string]bool, len(q.Populate))
	for _, p := range q.Populate {
		populated[p.Path] = true
	}

	docs := []Document{}
	for rows.Next() {
		row := make(map[string]any)
		if err := rows.MapScan(row); err != nil {
			return nil, err
		}
		doc, err := normalizeRow(row, populated)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return docs, nil
}

// Count implements Collection. Database errors are returned unmodified.
func (c *PostgresCollection) Count(ctx context.Context, filter And) (int64, error) {
	query, args, err := c.countSQL(filter)
	if err != nil {
		return 0, err
	}
	var total int64
	if err := c.db.QueryRowxContext(ctx, query, args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

// argList collects positional arguments. Every value is bound as text and
// cast on the SQL side, which keeps drivers out of type guessing.
type argList struct {
	args []any
}

func (a *argList) add(v any) string {
	a.args = append(a.args, v)
	return "$" + strconv.Itoa(len(a.args)) + "::text"
}

func (c *PostgresCollection) countSQL(filter And) (string, []any, error) {
	var args argList
	where, err := c.predicateSQL(filter, &args)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf(`SELECT COUNT(*) FROM %s AS t WHERE %s`, quoteIdent(c.table.Name), where), args.args, nil
}

func (c *PostgresCollection) selectSQL(q Query) (string, []any, error) {
	var args argList
	where, err := c.predicateSQL(q.Filter, &args)
	if err != nil {
		return "", nil, err
	}

	populate := make(map[string]PopulateSpec, len(q.Populate))
	for _, p := range q.Populate {
		populate[p.Path] = p
	}

	var selects []string
	for i, col := range c.projectedColumns(q.Projection) {
		if spec, ok := populate[col.Field]; ok {
			if rel, ok := c.table.Relations[col.Field]; ok {
				selects = append(selects, populateSQL(col, rel, spec, i))
				continue
			}
		}
		selects = append(selects, selectColumnSQL("t", col)+" AS "+quoteIdent(col.Field))
	}
	if len(selects) == 0 {
		// A projection naming only unknown fields still returns one row per match.
		selects = append(selects, "1 AS "+quoteIdent("_"))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s AS t WHERE %s", strings.Join(selects, ", "), quoteIdent(c.table.Name), where)

	var order []string
	for _, s := range q.Sort {
		col, ok := c.table.column(s.Field)
		if !ok {
			continue
		}
		dir := "ASC"
		if s.Desc {
			dir = "DESC"
		}
		order = append(order, "t."+quoteIdent(col.Name)+" "+dir)
	}
	if len(order) > 0 {
		sb.WriteString(" ORDER BY " + strings.Join(order, ", "))
	}
	if q.Limit > 0 {
		sb.WriteString(" LIMIT " + strconv.Itoa(q.Limit))
	}
	if q.Skip > 0 {
		sb.WriteString(" OFFSET " + strconv.Itoa(q.Skip))
	}
	return sb.String(), args.args, nil
}

// projectedColumns resolves a projection against the table, keeping table order.
// The id column is returned unless the projection excludes it.
func (c *PostgresCollection) projectedColumns(p Projection) []Column {
	include := make(map[string]bool, len(p.Include))
	for _, f := range p.Include {
		include[f] = true
	}
	var cols []Column
	for _, col := range c.table.Columns {
		if len(include) > 0 && !include[col.Field] && col.Field != idField {
			continue
		}
		if p.Excludes(col.Field) {
			continue
		}
		cols = append(cols, col)
	}
	return cols
}

func populateSQL(col Column, rel Relation, spec PopulateSpec, n int) string {
	alias := "r" + strconv.Itoa(n)
	key := rel.TargetKey
	if key == "" {
		key = "id"
	}

	want := make(map[string]bool, len(spec.Select))
	for _, f := range spec.Select {
		want[f] = true
	}
	var pairs []string
	for _, tc := range rel.Target.Columns {
		// The referenced key is always returned, like an embedded document id.
		if len(want) > 0 && !want[tc.Field] && tc.Name != key {
			continue
		}
		pairs = append(pairs, quoteLiteral(tc.Field), selectColumnSQL(alias, tc))
	}
	return fmt.Sprintf("(SELECT json_build_object(%s)::text FROM %s AS %s WHERE %s.%s = t.%s) AS %s",
		strings.Join(pairs, ", "),
		quoteIdent(rel.Target.Name), alias,
		alias, quoteIdent(key), quoteIdent(rel.Column),
		quoteIdent(col.Field))
}

func selectColumnSQL(alias string, col Column) string {
	expr := alias + "." + quoteIdent(col.Name)
	if textSelectTypes[col.Type] {
		expr += "::text"
	}
	return expr
}

func (c *PostgresCollection) predicateSQL(p Predicate, args *argList) (string, error) {
	switch node := p.(type) {
	case nil:
		return "TRUE", nil
	case And:
		return c.joinSQL([]Predicate(node), " AND ", "TRUE", args)
	case Or:
		return c.joinSQL([]Predicate(node), " OR ", "FALSE", args)
	case Condition:
		return c.conditionSQL(node, args)
	default:
		return "", apperror.NewBadRequestError(fmt.Sprintf("unsupported filter predicate %T", p), nil)
	}
}

func (c *PostgresCollection) joinSQL(nodes []Predicate, sep, empty string, args *argList) (string, error) {
	if len(nodes) == 0 {
		return empty, nil
	}
	parts := make([]string, 0, len(nodes))
	for _, n := range nodes {
		s, err := c.predicateSQL(n, args)
		if err != nil {
			return "", err
		}
		parts = append(parts, "("+s+")")
	}
	return strings.Join(parts, sep), nil
}

func (c *PostgresCollection) conditionSQL(cond Condition, args *argList) (string, error) {
	col, ok := c.table.column(cond.Field)
	if !ok {
		// An unknown field holds no value, so nothing can match it.
		return "FALSE", nil
	}

	switch cond.Op {
	case OpMatch:
		pattern := "%" + escapeLike(fmt.Sprint(cond.Value)) + "%"
		return "t." + quoteIdent(col.Name) + "::text ILIKE " + args.add(pattern), nil
	case OpEq:
		return eqSQL(col, cond.Value, args)
	default:
		return "", apperror.NewBadRequestError(fmt.Sprintf("unsupported filter operator %q", cond.Op), nil)
	}
}

// eqSQL renders an equality filter. Slices become IN lists and maps are read
// as operator objects such as {"$gte": 18, "$lt": 65}.
func eqSQL(col Column, v any, args *argList) (string, error) {
	switch val := v.(type) {
	case nil:
		return "t." + quoteIdent(col.Name) + " IS NULL", nil
	case []string:
		return inSQL(col, stringsToAny(val), false, args), nil
	case []any:
		return inSQL(col, val, false, args), nil
	case map[string]string:
		m := make(map[string]any, len(val))
		for k, s := range val {
			m[k] = s
		}
		return operatorSQL(col, m, args)
	case map[string]any:
		return operatorSQL(col, val, args)
	default:
		return compareSQL(col, "=", val, args), nil
	}
}

var comparisonOps = map[string]string{
	"eq":  "=",
	"ne":  "<>",
	"gt":  ">",
	"gte": ">=",
	"lt":  "<",
	"lte": "<=",
}

func operatorSQL(col Column, ops map[string]any, args *argList) (string, error) {
	if len(ops) == 0 {
		return "TRUE", nil
	}
	keys := make([]string, 0, len(ops))
	for k := range ops {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		op := strings.TrimPrefix(k, "$")
		v := ops[k]
		switch op {
		case "in", "nin":
			parts = append(parts, inSQL(col, toAnySlice(v), op == "nin", args))
		default:
			sqlOp, ok := comparisonOps[op]
			if !ok {
				return "", apperror.NewBadRequestError(fmt.Sprintf("unsupported filter operator %q on %s", k, col.Field), nil)
			}
			parts = append(parts, compareSQL(col, sqlOp, v, args))
		}
	}
	return strings.Join(parts, " AND "), nil
}

func compareSQL(col Column, op string, v any, args *argList) string {
	lhs, rhs := operands(col, v, args)
	return lhs + " " + op + " " + rhs
}

func inSQL(col Column, values []any, negate bool, args *argList) string {
	if len(values) == 0 {
		if negate {
			return "TRUE"
		}
		return "FALSE"
	}
	var lhs string
	placeholders := make([]string, 0, len(values))
	for _, v := range values {
		l, r := operands(col, v, args)
		lhs = l
		placeholders = append(placeholders, r)
	}
	kw := " IN "
	if negate {
		kw = " NOT IN "
	}
	return lhs + kw + "(" + strings.Join(placeholders, ", ") + ")"
}

// operands returns the column and bound-value expressions of a comparison.
func operands(col Column, v any, args *argList) (string, string) {
	lhs := "t." + quoteIdent(col.Name)
	rhs := args.add(valueText(v))
	if castableTypes[col.Type] {
		return lhs, "CAST(" + rhs + " AS " + col.Type + ")"
	}
	return lhs + "::text", rhs
}

func valueText(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case []byte:
		return string(val)
	default:
		return fmt.Sprint(val)
	}
}

func toAnySlice(v any) []any {
	switch val := v.(type) {
	case []any:
		return val
	case []string:
		return stringsToAny(val)
	case string:
		return stringsToAny(splitList(val))
	default:
		return []any{val}
	}
}

func stringsToAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// normalizeRow turns driver values into JSON-friendly ones and decodes
// populated relations.
func normalizeRow(row map[string]any, populated map[string]bool) (Document, error) {
	doc := make(Document, len(row))
	for k, v := range row {
		if b, ok := v.([]byte); ok {
			v = string(b)
		}
		if populated[k] {
			if s, ok := v.(string); ok {
				var rel map[string]any
				if err := json.Unmarshal([]byte(s), &rel); err != nil {
					return nil, fmt.Errorf("decode populated %s: %w", k, err)
				}
				v = rel
			}
		}
		doc[k] = v
	}
	return doc, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func quoteLiteral(s string) string {
	return `'` + strings.ReplaceAll(s, `'`, `''`) + `'`
}
