package listquery

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/postboard-go/apperror"
)

var (
	testUsers = &Table{
		Name: "users",
		Columns: []Column{
			{Field: "id", Name: "id", Type: "uuid"},
			{Field: "name", Name: "name"},
			{Field: "email", Name: "email"},
		},
	}
	testPosts = &Table{
		Name: "posts",
		Columns: []Column{
			{Field: "id", Name: "id", Type: "uuid"},
			{Field: "creatorId", Name: "creator_id", Type: "uuid"},
			{Field: "title", Name: "title"},
			{Field: "views", Name: "views", Type: "integer"},
			{Field: "createdAt", Name: "created_at", Type: "timestamptz"},
		},
		Relations: map[string]Relation{
			"creatorId": {Column: "creator_id", Target: testUsers},
		},
	}
)

func newMockCollection(t *testing.T) (*PostgresCollection, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresCollection(sqlx.NewDb(db, "sqlmock"), testPosts), mock
}

func TestCountSQL(t *testing.T) {
	c := NewPostgresCollection(nil, testPosts)

	query, args, err := c.countSQL(And{
		Or{
			Condition{Field: "title", Op: OpMatch, Value: "50%_off"},
		},
		Condition{Field: "views", Op: OpEq, Value: map[string]any{"$gte": 10, "lt": "20"}},
	})
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT COUNT(*) FROM "posts" AS t WHERE ((t."title"::text ILIKE $1::text)) AND (t."views" >= CAST($2::text AS integer) AND t."views" < CAST($3::text AS integer))`,
		query)
	assert.Equal(t, []any{`%50\%\_off%`, "10", "20"}, args)
}

func TestCountSQLEmptyFilter(t *testing.T) {
	query, args, err := NewPostgresCollection(nil, testPosts).countSQL(nil)
	require.NoError(t, err)
	assert.Equal(t, `SELECT COUNT(*) FROM "posts" AS t WHERE TRUE`, query)
	assert.Empty(t, args)
}

func TestEqualityTranslation(t *testing.T) {
	c := NewPostgresCollection(nil, testPosts)
	for _, tc := range []struct {
		name  string
		cond  Condition
		where string
		args  []any
	}{
		{"text scalar", Condition{Field: "title", Op: OpEq, Value: "Hello"}, `(t."title"::text = $1::text)`, []any{"Hello"}},
		{"typed scalar", Condition{Field: "views", Op: OpEq, Value: 3}, `(t."views" = CAST($1::text AS integer))`, []any{"3"}},
		{"null", Condition{Field: "title", Op: OpEq, Value: nil}, `(t."title" IS NULL)`, nil},
		{"repeated key", Condition{Field: "title", Op: OpEq, Value: []string{"a", "b"}}, `(t."title"::text IN ($1::text, $2::text))`, []any{"a", "b"}},
		{"empty list", Condition{Field: "title", Op: OpEq, Value: []any{}}, `(FALSE)`, nil},
		{"nin", Condition{Field: "title", Op: OpEq, Value: map[string]any{"$nin": "a,b"}}, `(t."title"::text NOT IN ($1::text, $2::text))`, []any{"a", "b"}},
		{"unknown field", Condition{Field: "password", Op: OpEq, Value: "x"}, `(FALSE)`, nil},
	} {
		t.Run(tc.name, func(t *testing.T) {
			query, args, err := c.countSQL(And{tc.cond})
			require.NoError(t, err)
			assert.Equal(t, `SELECT COUNT(*) FROM "posts" AS t WHERE `+tc.where, query)
			assert.Equal(t, tc.args, args)
		})
	}
}

func TestUnknownOperatorIsBadRequest(t *testing.T) {
	_, _, err := NewPostgresCollection(nil, testPosts).countSQL(And{
		Condition{Field: "views", Op: OpEq, Value: map[string]any{"$where": "1=1"}},
	})
	require.Error(t, err)
	assert.True(t, apperror.IsBadRequest(err))
}

func TestSelectSQL(t *testing.T) {
	b := New(NewPostgresCollection(nil, testPosts), Params{
		"sort":   "-views,bogus,title",
		"page":   "2",
		"limit":  "5",
		"fields": "title,creatorId,password",
	}).Sort().Paginate().Fields().Populate([]string{"creatorId"}, map[string]string{"creatorId": "name password"})

	query, args, err := NewPostgresCollection(nil, testPosts).selectSQL(b.Query())
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT t."id"::text AS "id", (SELECT json_build_object('id', r1."id"::text, 'name', r1."name")::text FROM "users" AS r1 WHERE r1."id" = t."creator_id") AS "creatorId", t."title" AS "title" `+
			`FROM "posts" AS t WHERE TRUE ORDER BY t."views" DESC, t."title" ASC LIMIT 5 OFFSET 5`,
		query)
	assert.Empty(t, args)
}

func TestSelectSQLDefaultProjection(t *testing.T) {
	b := New(nil, Params{}).Sort().Paginate().Fields()
	query, _, err := NewPostgresCollection(nil, testPosts).selectSQL(b.Query())
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT t."id"::text AS "id", t."creator_id"::text AS "creatorId", t."title" AS "title", t."views" AS "views", t."created_at" AS "createdAt" `+
			`FROM "posts" AS t WHERE TRUE ORDER BY t."created_at" DESC LIMIT 10`,
		query)
}

func TestSelectSQLKeepsIDUnlessExcluded(t *testing.T) {
	c := NewPostgresCollection(nil, testPosts)

	b := New(nil, Params{"fields": "title"}).Fields()
	query, _, err := c.selectSQL(b.Query())
	require.NoError(t, err)
	assert.Equal(t, `SELECT t."id"::text AS "id", t."title" AS "title" FROM "posts" AS t WHERE TRUE`, query)

	b = New(nil, Params{"fields": "title,-id"}).Fields()
	query, _, err = c.selectSQL(b.Query())
	require.NoError(t, err)
	assert.Equal(t, `SELECT t."title" AS "title" FROM "posts" AS t WHERE TRUE`, query)
}

func TestFindDecodesPopulatedRelation(t *testing.T) {
	c, mock := newMockCollection(t)

	q := Query{
		Filter:     And{Condition{Field: "title", Op: OpEq, Value: "Hello"}},
		Projection: Projection{Include: []string{"title", "creatorId"}},
		Populate:   []PopulateSpec{{Path: "creatorId", Select: []string{"name"}}},
	}
	query, _, err := c.selectSQL(q)
	require.NoError(t, err)

	mock.ExpectQuery(query).
		WithArgs("Hello").
		WillReturnRows(sqlmock.NewRows([]string{"creatorId", "title"}).
			AddRow(`{"id":"u1","name":"Ada"}`, []byte("Hello")))

	docs, err := c.Find(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, []Document{{
		"creatorId": map[string]any{"id": "u1", "name": "Ada"},
		"title":     "Hello",
	}}, docs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindReturnsEmptySlice(t *testing.T) {
	c, mock := newMockCollection(t)
	query, _, err := c.selectSQL(Query{})
	require.NoError(t, err)
	mock.ExpectQuery(query).WillReturnRows(sqlmock.NewRows([]string{"title"}))

	docs, err := c.Find(context.Background(), Query{})
	require.NoError(t, err)
	assert.NotNil(t, docs)
	assert.Empty(t, docs)
}

func TestCountRunsAgainstStore(t *testing.T) {
	c, mock := newMockCollection(t)
	mock.ExpectQuery(`SELECT COUNT(*) FROM "posts" AS t WHERE (t."title"::text = $1::text)`).
		WithArgs("Hello").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(45)))

	total, err := c.Count(context.Background(), And{Condition{Field: "title", Op: OpEq, Value: "Hello"}})
	require.NoError(t, err)
	assert.Equal(t, int64(45), total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreErrorIsUnmodified(t *testing.T) {
	c, mock := newMockCollection(t)
	boom := errors.New("connection reset")
	mock.ExpectQuery(`SELECT COUNT(*) FROM "posts" AS t WHERE TRUE`).WillReturnError(boom)

	_, err := New(c, Params{}).PaginationInfo(context.Background())
	assert.Same(t, boom, err)
}
