package users

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/postboard-go/apperror"
	"github.com/user/postboard-go/auth"
	"github.com/user/postboard-go/config"
	"github.com/user/postboard-go/events"
	"github.com/user/postboard-go/listquery"
	"github.com/user/postboard-go/uploads"
)

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	svc    *Service
	store  *fakeStore
	files  *fakeFiles
	mail   *recordingMail
	events *recordingPublisher
}

func newTestEnv(t *testing.T, list listquery.Collection, users ...*User) *testEnv {
	t.Helper()
	env := &testEnv{
		store:  newFakeStore(users...),
		files:  &fakeFiles{},
		mail:   &recordingMail{},
		events: &recordingPublisher{},
	}
	env.svc = NewService(Deps{
		Store:  env.store,
		List:   list,
		Files:  env.files,
		Mail:   env.mail,
		Events: env.events,
		Auth:   &config.AuthConfig{BcryptCost: 4, OTPExpiresIn: time.Minute},
		Logger: logrus.New(),
	})
	env.svc.now = func() time.Time { return testNow }
	return env
}

func existingUser(verified bool) *User {
	return &User{
		ID:       uuid.NewString(),
		Name:     "Ada",
		Role:     auth.RoleUser,
		Email:    "ada@example.com",
		Status:   StatusActive,
		Verified: verified,
		Image:    "/uploads/image/old.png",
	}
}

func TestCreateUserNew(t *testing.T) {
	env := newTestEnv(t, nil)

	msg, err := env.svc.CreateUser(context.Background(), CreateUserRequest{
		Name: "Ada", Email: " Ada@Example.com ", Password: "long-enough",
	})
	require.NoError(t, err)
	assert.Equal(t, MsgUserCreated, msg)

	created, err := env.store.FindByEmail(context.Background(), "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, auth.RoleUser, created.Role)
	assert.Equal(t, StatusActive, created.Status)
	assert.False(t, created.Verified)
	ok, err := auth.CheckPassword(created.Password, "long-enough")
	require.NoError(t, err)
	assert.True(t, ok)

	require.Len(t, env.store.codes, 1)
	code := env.store.codes[0]
	assert.Equal(t, code, created.Authentication.OneTimeCode)
	assert.Equal(t, testNow.Add(time.Minute), *created.Authentication.ExpireAt)

	require.Len(t, env.mail.sent, 1)
	assert.Equal(t, "ada@example.com", env.mail.sent[0].To)
	assert.Contains(t, env.mail.sent[0].HTML, code)

	assert.Equal(t, []string{events.TopicUserCreated}, env.events.topics)
}

func TestCreateUserExisting(t *testing.T) {
	t.Run("unverified gets a new code", func(t *testing.T) {
		u := existingUser(false)
		env := newTestEnv(t, nil, u)

		msg, err := env.svc.CreateUser(context.Background(), CreateUserRequest{Name: "X", Email: u.Email, Password: "long-enough"})
		require.NoError(t, err)
		assert.Equal(t, MsgUserExistsVerify, msg)
		assert.Len(t, env.store.users, 1)
		assert.Len(t, env.mail.sent, 1)
		assert.Empty(t, env.events.topics)
	})

	t.Run("verified is left alone", func(t *testing.T) {
		u := existingUser(true)
		env := newTestEnv(t, nil, u)

		msg, err := env.svc.CreateUser(context.Background(), CreateUserRequest{Name: "X", Email: u.Email, Password: "long-enough"})
		require.NoError(t, err)
		assert.Equal(t, MsgUserExistsLogin, msg)
		assert.Empty(t, env.store.codes)
		assert.Empty(t, env.mail.sent)
	})
}

func TestCreateUserRaceIsConflict(t *testing.T) {
	env := newTestEnv(t, nil)
	env.store.createErr = ErrEmailTaken

	_, err := env.svc.CreateUser(context.Background(), CreateUserRequest{Name: "Ada", Email: "ada@example.com", Password: "long-enough"})
	assert.True(t, apperror.IsConflictError(err))
}

func TestIssueOneTimeCode(t *testing.T) {
	u := existingUser(true)
	env := newTestEnv(t, nil, u)

	require.NoError(t, env.svc.IssueOneTimeCode(context.Background(), "ada@example.com"))
	require.Len(t, env.mail.sent, 1)
	assert.Equal(t, "Your one-time code", env.mail.sent[0].Subject)
	assert.Contains(t, env.mail.sent[0].HTML, env.store.codes[0])

	err := env.svc.IssueOneTimeCode(context.Background(), "nobody@example.com")
	assert.True(t, apperror.IsBadRequest(err))
}

func TestGetProfile(t *testing.T) {
	u := existingUser(true)
	env := newTestEnv(t, nil, u)

	got, err := env.svc.GetProfile(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada", got.Name)

	for _, id := range []string{uuid.NewString(), "not-a-uuid"} {
		_, err := env.svc.GetProfile(context.Background(), id)
		require.Error(t, err)
		appErr, _ := apperror.FromError(err)
		assert.Equal(t, "User doesn't exist!", appErr.Message)
		assert.True(t, apperror.IsBadRequest(err))
	}
}

func TestUpdateProfileReplacesImage(t *testing.T) {
	u := existingUser(true)
	env := newTestEnv(t, nil, u)
	name := "Ada King"

	got, err := env.svc.UpdateProfile(context.Background(), u.ID,
		UpdateProfileRequest{Name: &name},
		&uploads.File{Field: "image", StoredName: "new-1.png"})
	require.NoError(t, err)

	assert.Equal(t, "Ada King", got.Name)
	assert.Equal(t, "/uploads/image/new-1.png", got.Image)
	assert.Equal(t, []string{"/uploads/image/new-1.png"}, env.files.stored)
	assert.Equal(t, []string{"/uploads/image/old.png"}, env.files.removed)
}

func TestUpdateProfileMissingUserStoresNothing(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.svc.UpdateProfile(context.Background(), uuid.NewString(), UpdateProfileRequest{},
		&uploads.File{Field: "image", StoredName: "new-1.png"})
	assert.True(t, apperror.IsBadRequest(err))
	assert.Empty(t, env.files.stored)
}

func TestUpdateProfileFailureRemovesNewImage(t *testing.T) {
	u := existingUser(true)
	env := newTestEnv(t, nil, u)
	env.store.updateErr = errors.New("db down")

	_, err := env.svc.UpdateProfile(context.Background(), u.ID, UpdateProfileRequest{},
		&uploads.File{Field: "image", StoredName: "new-1.png"})
	require.Error(t, err)
	assert.Equal(t, []string{"/uploads/image/new-1.png"}, env.files.removed)
}

func TestUpdateProfileWithoutChanges(t *testing.T) {
	u := existingUser(true)
	env := newTestEnv(t, nil, u)

	got, err := env.svc.UpdateProfile(context.Background(), u.ID, UpdateProfileRequest{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Version)
	assert.Empty(t, env.files.removed)
}

type stubCollection struct {
	docs    []listquery.Document
	total   int64
	err     error
	queries []listquery.Query
}

func (c *stubCollection) Find(_ context.Context, q listquery.Query) ([]listquery.Document, error) {
	c.queries = append(c.queries, q)
	return c.docs, c.err
}

func (c *stubCollection) Count(_ context.Context, _ listquery.And) (int64, error) {
	return c.total, c.err
}

func TestListUsers(t *testing.T) {
	coll := &stubCollection{docs: []listquery.Document{{"name": "Ada"}}, total: 11}
	env := newTestEnv(t, coll)

	docs, meta, err := env.svc.ListUsers(context.Background(), listquery.Params{
		"searchTerm": "ada", "verified": "true", "page": "2",
	})
	require.NoError(t, err)
	assert.Equal(t, coll.docs, docs)
	assert.Equal(t, listquery.Pagination{Total: 11, Limit: 10, Page: 2, TotalPage: 2}, meta)

	require.Len(t, coll.queries, 1)
	q := coll.queries[0]
	assert.Equal(t, listquery.And{
		listquery.Or{
			listquery.Condition{Field: "name", Op: listquery.OpMatch, Value: "ada"},
			listquery.Condition{Field: "email", Op: listquery.OpMatch, Value: "ada"},
		},
		listquery.Condition{Field: "verified", Op: listquery.OpEq, Value: "true"},
	}, q.Filter)
	assert.Equal(t, 10, q.Skip)
	assert.True(t, q.Projection.Excludes("password"))
}

func TestListUsersErrors(t *testing.T) {
	env := newTestEnv(t, &stubCollection{err: errors.New("timeout")})
	_, _, err := env.svc.ListUsers(context.Background(), listquery.Params{})
	appErr, ok := apperror.FromError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.DatabaseError, appErr.Type)

	bad := apperror.NewBadRequestError("unsupported operator", nil)
	env = newTestEnv(t, &stubCollection{err: bad})
	_, _, err = env.svc.ListUsers(context.Background(), listquery.Params{})
	assert.Same(t, bad, err)
}

func TestSeedSuperAdmin(t *testing.T) {
	env := newTestEnv(t, nil)

	require.NoError(t, env.svc.SeedSuperAdmin(context.Background(), "", ""))
	assert.Empty(t, env.store.users)

	require.NoError(t, env.svc.SeedSuperAdmin(context.Background(), "Root@Example.com", "long-enough"))
	require.NoError(t, env.svc.SeedSuperAdmin(context.Background(), "root@example.com", "long-enough"))
	require.Len(t, env.store.users, 1)

	admin, err := env.store.FindByEmail(context.Background(), "root@example.com")
	require.NoError(t, err)
	assert.Equal(t, auth.RoleSuperAdmin, admin.Role)
	assert.True(t, admin.Verified)
}

func TestImportUsers(t *testing.T) {
	u := existingUser(true)
	env := newTestEnv(t, nil, u)

	msg, err := env.svc.ImportUsers(context.Background(), strings.NewReader(`[
		{"name": "Ada", "email": "ada@example.com", "password": "long-enough"},
		{"name": "Grace", "email": "grace@example.com", "password": "long-enough", "role": "ADMIN", "verified": true}
	]`))
	require.NoError(t, err)
	assert.Equal(t, "1 users created, 1 skipped", msg)

	grace, err := env.store.FindByEmail(context.Background(), "grace@example.com")
	require.NoError(t, err)
	assert.Equal(t, auth.RoleAdmin, grace.Role)
	assert.True(t, grace.Verified)
}

func TestImportUsersValidatesFirst(t *testing.T) {
	env := newTestEnv(t, nil)

	_, err := env.svc.ImportUsers(context.Background(), strings.NewReader(`[
		{"name": "Ada", "email": "ada@example.com", "password": "long-enough"},
		{"name": "Bad", "email": "not-an-email", "password": "long-enough"}
	]`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entry 1")
	assert.True(t, apperror.IsValidationError(err))
	assert.Empty(t, env.store.users)

	_, err = env.svc.ImportUsers(context.Background(), strings.NewReader(`{`))
	assert.True(t, apperror.IsBadRequest(err))
}
