package users

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/user/postboard-go/auth"
	"github.com/user/postboard-go/httpx"
	"github.com/user/postboard-go/listquery"
	"github.com/user/postboard-go/uploads"
)

// listParams are the query parameters the user listing honours.
var listParams = []string{"searchTerm", "verified", "fields", "sort", "page", "limit"}

// UserService is what the handlers need from Service.
type UserService interface {
	CreateUser(ctx context.Context, req CreateUserRequest) (string, error)
	GetProfile(ctx context.Context, id string) (*User, error)
	UpdateProfile(ctx context.Context, id string, req UpdateProfileRequest, image *uploads.File) (*User, error)
	ListUsers(ctx context.Context, params listquery.Params) ([]listquery.Document, listquery.Pagination, error)
}

// FormParser parses multipart uploads. *uploads.Uploader implements it.
type FormParser interface {
	Parse(r *http.Request) (*uploads.Form, error)
}

// Handlers serves /api/v1/users.
type Handlers struct {
	service UserService
	forms   FormParser
}

// NewHandlers creates Handlers.
func NewHandlers(service UserService, forms FormParser) *Handlers {
	return &Handlers{service: service, forms: forms}
}

// Routes mounts the user endpoints.
func (h *Handlers) Routes(tokens *auth.Tokens) chi.Router {
	r := chi.NewRouter()
	anyUser := auth.Authorize(tokens, auth.RoleUser, auth.RoleAdmin, auth.RoleSuperAdmin)

	r.Post("/", h.HandleCreateUser)
	r.With(anyUser).Get("/profile", h.HandleGetProfile)
	r.With(anyUser).Patch("/profile", h.HandleUpdateProfile)
	r.With(auth.Authorize(tokens, auth.RoleAdmin, auth.RoleSuperAdmin)).Get("/", h.HandleListUsers)
	return r
}

// HandleCreateUser godoc
// @Summary Sign up
// @Description Creates an unverified account and emails a verification code. Signing up again with an unverified email sends a new code.
// @Tags users
// @Accept json
// @Produce json
// @Param user body CreateUserRequest true "New account"
// @Success 200 {object} httpx.Response
// @Failure 400 {object} apperror.ErrorResponse
// @Router /users [post]
func (h *Handlers) HandleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := httpx.Decode(w, r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	message, err := h.service.CreateUser(r.Context(), req)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.OK(w, message, "")
}

// HandleGetProfile godoc
// @Summary Get own profile
// @Tags users
// @Produce json
// @Security BearerAuth
// @Success 200 {object} ProfileResponse
// @Failure 400 {object} apperror.ErrorResponse "User doesn't exist!"
// @Failure 401 {object} apperror.ErrorResponse
// @Router /users/profile [get]
func (h *Handlers) HandleGetProfile(w http.ResponseWriter, r *http.Request) {
	claims, err := auth.RequireClaims(r.Context())
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	user, err := h.service.GetProfile(r.Context(), claims.UserID)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.OK(w, "Profile data retrieved successfully", user)
}

// HandleUpdateProfile godoc
// @Summary Update own profile
// @Description Accepts JSON, or multipart with an optional `image` file and the fields either as form values or as a `data` JSON document.
// @Tags users
// @Accept json,mpfd
// @Produce json
// @Security BearerAuth
// @Param profile body UpdateProfileRequest false "Fields to change"
// @Param image formData file false "Profile image"
// @Success 200 {object} ProfileResponse
// @Failure 400 {object} apperror.ErrorResponse
// @Failure 401 {object} apperror.ErrorResponse
// @Router /users/profile [patch]
func (h *Handlers) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	claims, err := auth.RequireClaims(r.Context())
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	var (
		req   UpdateProfileRequest
		image *uploads.File
	)
	if uploads.IsMultipart(r) {
		form, err := h.forms.Parse(r)
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		if data := form.Value("data"); data != "" {
			err = httpx.DecodeString(data, &req)
		} else {
			req = profileFromForm(form)
			err = httpx.Validate(&req)
		}
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		image = form.First(uploads.FieldImage)
	} else if err := httpx.Decode(w, r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	user, err := h.service.UpdateProfile(r.Context(), claims.UserID, req, image)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.OK(w, "Profile updated successfully", user)
}

func profileFromForm(form *uploads.Form) UpdateProfileRequest {
	field := func(key string) *string {
		if _, ok := form.Values[key]; !ok {
			return nil
		}
		v := form.Value(key)
		return &v
	}
	return UpdateProfileRequest{
		Name:     field("name"),
		Contact:  field("contact"),
		Location: field("location"),
	}
}

// HandleListUsers godoc
// @Summary List users
// @Description Paginated user listing. Unknown query parameters are ignored.
// @Tags users
// @Produce json
// @Security BearerAuth
// @Param searchTerm query string false "Case-insensitive match on name or email"
// @Param verified query bool false "Filter by verification state"
// @Param sort query string false "Comma-separated fields, '-' for descending" default(-createdAt)
// @Param fields query string false "Comma-separated projection, '-' to exclude"
// @Param page query int false "Page number" default(1)
// @Param limit query int false "Page size" default(10)
// @Success 200 {object} UserListResponse
// @Failure 401 {object} apperror.ErrorResponse
// @Failure 403 {object} apperror.ErrorResponse
// @Router /users [get]
func (h *Handlers) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	docs, meta, err := h.service.ListUsers(r.Context(), httpx.QueryParams(r, listParams...))
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.Send(w, httpx.Response{
		StatusCode: http.StatusOK,
		Message:    "Users retrieved successfully",
		Data:       docs,
		Pagination: &meta,
	})
}
