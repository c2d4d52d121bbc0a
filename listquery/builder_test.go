package listquery

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCollection records what the builder hands to the store.
type fakeCollection struct {
	docs    []Document
	total   int64
	err     error
	queries []Query
	counts  []And
}

func (f *fakeCollection) Find(_ context.Context, q Query) ([]Document, error) {
	f.queries = append(f.queries, q)
	return f.docs, f.err
}

func (f *fakeCollection) Count(_ context.Context, filter And) (int64, error) {
	f.counts = append(f.counts, filter)
	return f.total, f.err
}

func TestSortDefaultsToNewestFirst(t *testing.T) {
	newest := []SortField{{Field: "createdAt", Desc: true}}
	b := New(&fakeCollection{}, Params{}).Sort()
	assert.Equal(t, newest, b.Query().Sort)

	for _, raw := range []any{"-", " - ", []string{"-", ""}} {
		b := New(&fakeCollection{}, Params{"sort": raw}).Sort()
		assert.Equal(t, newest, b.Query().Sort, "sort=%q", raw)
	}
}

func TestSortCompound(t *testing.T) {
	b := New(&fakeCollection{}, Params{"sort": "-age name"}).Sort()
	// A space inside one value is part of the field name.
	assert.Equal(t, []SortField{{Field: "age name", Desc: true}}, b.Query().Sort)

	b = New(&fakeCollection{}, Params{"sort": []string{"-age", "name"}}).Sort()
	assert.Equal(t, []SortField{{Field: "age", Desc: true}, {Field: "name"}}, b.Query().Sort)

	b = New(&fakeCollection{}, Params{"sort": "-age,name"}).Sort()
	assert.Equal(t, []SortField{{Field: "age", Desc: true}, {Field: "name"}}, b.Query().Sort)
}

func TestSearchAndFilterApplyOnce(t *testing.T) {
	b := New(&fakeCollection{}, Params{"searchTerm": "go", "status": "active"}).
		Search("title").
		Filter().
		Search("title").
		Filter()

	assert.Equal(t, And{
		Or{Condition{Field: "title", Op: OpMatch, Value: "go"}},
		Condition{Field: "status", Op: OpEq, Value: "active"},
	}, b.Query().Filter)
}

func TestPaginate(t *testing.T) {
	coll := &fakeCollection{total: 45}
	b := New(coll, Params{"page": "3", "limit": "20"}).Paginate()

	q := b.Query()
	assert.Equal(t, 40, q.Skip)
	assert.Equal(t, 20, q.Limit)

	meta, err := b.PaginationInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Pagination{Total: 45, Limit: 20, Page: 3, TotalPage: 3}, meta)
}

func TestPaginationInfoEmpty(t *testing.T) {
	meta, err := New(&fakeCollection{}, Params{}).PaginationInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Pagination{Total: 0, Limit: 10, Page: 1, TotalPage: 0}, meta)
}

func TestMalformedPageEqualsAbsent(t *testing.T) {
	for _, raw := range []any{"abc", "0", "-2", "", "NaN", "Inf"} {
		got := New(&fakeCollection{}, Params{"page": raw, "limit": raw}).Paginate().Query()
		want := New(&fakeCollection{}, Params{}).Paginate().Query()
		assert.Equal(t, want, got, "page=%v", raw)
	}
	assert.Equal(t, 2, ParseOptions(Params{"page": "2.9"}).Page)
}

func TestFilterSkipsReservedKeys(t *testing.T) {
	raw := Params{
		"searchTerm": "go",
		"sort":       "title",
		"page":       "2",
		"limit":      "5",
		"fields":     "title",
		"status":     "active",
		"role":       "ADMIN",
	}
	b := New(&fakeCollection{}, raw).Filter()
	assert.Equal(t, And{
		Condition{Field: "role", Op: OpEq, Value: "ADMIN"},
		Condition{Field: "status", Op: OpEq, Value: "active"},
	}, b.Query().Filter)
}

func TestSearchAndFilterCombine(t *testing.T) {
	b := New(&fakeCollection{}, Params{"searchTerm": "go", "creatorId": "u1"}).
		Search("title", "description").
		Filter()

	assert.Equal(t, And{
		Or{
			Condition{Field: "title", Op: OpMatch, Value: "go"},
			Condition{Field: "description", Op: OpMatch, Value: "go"},
		},
		Condition{Field: "creatorId", Op: OpEq, Value: "u1"},
	}, b.Query().Filter)
}

func TestEmptySearchTermIsNoop(t *testing.T) {
	for _, raw := range []Params{{}, {"searchTerm": ""}} {
		b := New(&fakeCollection{}, raw).Search("title")
		assert.Empty(t, b.Query().Filter)
	}
	assert.Empty(t, New(&fakeCollection{}, Params{"searchTerm": "go"}).Search().Query().Filter)
}

func TestFieldsAlwaysHideSecret(t *testing.T) {
	for _, tc := range []struct {
		fields any
		want   string
	}{
		{nil, "-__v -password"},
		{"name,email", "name email -password"},
		{"name,password", "name -password"},
		{"-password", "-password"},
		{"-name,-name", "-name -password"},
	} {
		raw := Params{}
		if tc.fields != nil {
			raw["fields"] = tc.fields
		}
		proj := New(&fakeCollection{}, raw).Fields().Query().Projection
		assert.Equal(t, tc.want, proj.String(), "fields=%v", tc.fields)
		assert.True(t, proj.Excludes("password"))
		assert.NotContains(t, proj.Include, "password")
	}
}

func TestCustomSecretAndVersionFields(t *testing.T) {
	proj := New(&fakeCollection{}, Params{}, WithSecretField("hash"), WithVersionField("rev")).Fields().Query().Projection
	assert.Equal(t, "-rev -hash", proj.String())
}

func TestPopulateDropsSecret(t *testing.T) {
	b := New(&fakeCollection{}, Params{}).Populate(
		[]string{"creatorId"},
		map[string]string{"creatorId": "name email password"},
	)
	assert.Equal(t, []PopulateSpec{{Path: "creatorId", Select: []string{"name", "email"}}}, b.Query().Populate)
}

func TestPaginationCountIgnoresShaping(t *testing.T) {
	coll := &fakeCollection{total: 7}
	raw := Params{"status": "active", "sort": "title", "fields": "title", "limit": "2"}

	b := New(coll, raw).Filter()
	before, err := b.PaginationInfo(context.Background())
	require.NoError(t, err)

	b.Sort().Paginate().Fields().Populate([]string{"creatorId"}, nil)
	after, err := b.PaginationInfo(context.Background())
	require.NoError(t, err)

	assert.Equal(t, before, after)
	require.Len(t, coll.counts, 2)
	assert.Equal(t, coll.counts[0], coll.counts[1])
}

func TestFindHandsOverCopy(t *testing.T) {
	coll := &fakeCollection{docs: []Document{{"title": "a"}}}
	b := New(coll, Params{"status": "active"}).Filter()

	docs, err := b.Find(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Document{{"title": "a"}}, docs)

	coll.queries[0].Filter[0] = Condition{Field: "mutated"}
	assert.Equal(t, Condition{Field: "status", Op: OpEq, Value: "active"}, b.Query().Filter[0])
}

func TestStoreErrorsPropagate(t *testing.T) {
	boom := errors.New("store unavailable")
	b := New(&fakeCollection{err: boom}, Params{})

	_, err := b.Find(context.Background())
	assert.Same(t, boom, err)
	_, err = b.PaginationInfo(context.Background())
	assert.Same(t, boom, err)
}

func TestParamsFromValues(t *testing.T) {
	p := ParamsFromValues(url.Values{"page": {"2"}, "tag": {"a", "b"}, "empty": {}})
	assert.Equal(t, Params{"page": "2", "tag": []string{"a", "b"}}, p)
	assert.Equal(t, Params{"page": "2"}, p.Pick("page", "missing"))
}
