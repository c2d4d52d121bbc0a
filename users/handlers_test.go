package users

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/postboard-go/apperror"
	"github.com/user/postboard-go/auth"
	"github.com/user/postboard-go/config"
	"github.com/user/postboard-go/listquery"
	"github.com/user/postboard-go/uploads"
)

type mockUserService struct {
	createReq  CreateUserRequest
	updateReq  UpdateProfileRequest
	updateFile *uploads.File
	updateID   string
	listParams listquery.Params
	err        error
}

func (m *mockUserService) CreateUser(_ context.Context, req CreateUserRequest) (string, error) {
	m.createReq = req
	return MsgUserCreated, m.err
}

func (m *mockUserService) GetProfile(_ context.Context, id string) (*User, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &User{ID: id, Name: "Ada", Password: "hash", Authentication: Authentication{OneTimeCode: "123456"}}, nil
}

func (m *mockUserService) UpdateProfile(_ context.Context, id string, req UpdateProfileRequest, image *uploads.File) (*User, error) {
	m.updateID, m.updateReq, m.updateFile = id, req, image
	return &User{ID: id}, m.err
}

func (m *mockUserService) ListUsers(_ context.Context, params listquery.Params) ([]listquery.Document, listquery.Pagination, error) {
	m.listParams = params
	return []listquery.Document{{"name": "Ada"}}, listquery.Pagination{Total: 1, Limit: 10, Page: 1, TotalPage: 1}, m.err
}

type stubParser struct {
	form *uploads.Form
	err  error
}

func (p *stubParser) Parse(r *http.Request) (*uploads.Form, error) {
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		return nil, err
	}
	if p.form != nil {
		p.form.Values = r.MultipartForm.Value
	}
	return p.form, p.err
}

type envelope struct {
	Success    bool                  `json:"success"`
	StatusCode int                   `json:"statusCode"`
	Message    string                `json:"message"`
	Data       json.RawMessage       `json:"data"`
	Pagination *listquery.Pagination `json:"pagination"`
}

func setupRouter(t *testing.T, svc UserService, parser FormParser) (http.Handler, *auth.Tokens) {
	t.Helper()
	tokens := auth.NewTokens(&config.AuthConfig{JWTSecret: "test-secret", JWTExpiresIn: time.Hour})
	return NewHandlers(svc, parser).Routes(tokens), tokens
}

func bearer(t *testing.T, tokens *auth.Tokens, role auth.Role) string {
	t.Helper()
	signed, err := tokens.Create("3f2a6f0e-8c1d-4d8e-9a51-1b2f0c3d4e5f", role, "ada@example.com")
	require.NoError(t, err)
	return "Bearer " + signed
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestHandleCreateUser(t *testing.T) {
	svc := &mockUserService{}
	router, _ := setupRouter(t, svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"Ada","email":"ada@example.com","password":"long-enough"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.True(t, env.Success)
	assert.Equal(t, MsgUserCreated, env.Message)
	assert.Equal(t, "ada@example.com", svc.createReq.Email)
}

func TestHandleCreateUserValidation(t *testing.T) {
	router, _ := setupRouter(t, &mockUserService{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"nope","password":"short"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp apperror.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Validation Error", resp.Message)
	paths := make([]string, 0, len(resp.ErrorMessages))
	for _, m := range resp.ErrorMessages {
		paths = append(paths, m.Path)
	}
	assert.ElementsMatch(t, []string{"name", "email", "password"}, paths)
}

func TestHandleGetProfileHidesSecrets(t *testing.T) {
	router, tokens := setupRouter(t, &mockUserService{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/profile", nil)
	req.Header.Set("Authorization", bearer(t, tokens, auth.RoleUser))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, "Profile data retrieved successfully", env.Message)
	assert.NotContains(t, string(env.Data), "hash")
	assert.NotContains(t, string(env.Data), "123456")
	assert.Contains(t, string(env.Data), `"name":"Ada"`)
}

func TestHandleGetProfileRequiresToken(t *testing.T) {
	router, _ := setupRouter(t, &mockUserService{}, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/profile", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleUpdateProfileJSON(t *testing.T) {
	svc := &mockUserService{}
	router, tokens := setupRouter(t, svc, nil)

	req := httptest.NewRequest(http.MethodPatch, "/profile", strings.NewReader(`{"location":"Paris"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", bearer(t, tokens, auth.RoleAdmin))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Profile updated successfully", decodeEnvelope(t, rec).Message)
	assert.Equal(t, "3f2a6f0e-8c1d-4d8e-9a51-1b2f0c3d4e5f", svc.updateID)
	require.NotNil(t, svc.updateReq.Location)
	assert.Equal(t, "Paris", *svc.updateReq.Location)
	assert.Nil(t, svc.updateReq.Name)
	assert.Nil(t, svc.updateFile)
}

func TestHandleUpdateProfileMultipart(t *testing.T) {
	image := &uploads.File{Field: uploads.FieldImage, StoredName: "a-1.png"}
	svc := &mockUserService{}
	router, tokens := setupRouter(t, svc, &stubParser{form: &uploads.Form{
		Files: map[string][]*uploads.File{uploads.FieldImage: {image}},
	}})

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("name", "Ada King"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPatch, "/profile", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", bearer(t, tokens, auth.RoleUser))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.updateReq.Name)
	assert.Equal(t, "Ada King", *svc.updateReq.Name)
	assert.Nil(t, svc.updateReq.Contact)
	assert.Same(t, image, svc.updateFile)
}

func TestHandleUpdateProfileServiceError(t *testing.T) {
	router, tokens := setupRouter(t, &mockUserService{err: apperror.NewBadRequestError("User doesn't exist!", nil)}, nil)

	req := httptest.NewRequest(http.MethodPatch, "/profile", strings.NewReader(`{}`))
	req.Header.Set("Authorization", bearer(t, tokens, auth.RoleUser))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "User doesn't exist!")
}

func TestHandleListUsers(t *testing.T) {
	svc := &mockUserService{}
	router, tokens := setupRouter(t, svc, nil)

	req := httptest.NewRequest(http.MethodGet, "/?searchTerm=ada&verified=true&role=ADMIN&page=1", nil)
	req.Header.Set("Authorization", bearer(t, tokens, auth.RoleSuperAdmin))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, "Users retrieved successfully", env.Message)
	require.NotNil(t, env.Pagination)
	assert.Equal(t, int64(1), env.Pagination.Total)
	assert.Equal(t, listquery.Params{"searchTerm": "ada", "verified": "true", "page": "1"}, svc.listParams)
}

func TestHandleListUsersForbiddenForUsers(t *testing.T) {
	router, tokens := setupRouter(t, &mockUserService{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", bearer(t, tokens, auth.RoleUser))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
