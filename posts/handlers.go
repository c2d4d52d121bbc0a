package posts

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/user/postboard-go/auth"
	"github.com/user/postboard-go/httpx"
	"github.com/user/postboard-go/listquery"
	"github.com/user/postboard-go/uploads"
)

// PostService is what the handlers need from Service.
type PostService interface {
	CreatePost(ctx context.Context, creatorID string, req CreatePostRequest, image *uploads.File) (string, error)
	GetPost(ctx context.Context, id string) (*Post, string, error)
	ListPosts(ctx context.Context, params listquery.Params) ([]listquery.Document, listquery.Pagination, error)
	UpdatePost(ctx context.Context, actor *auth.Claims, id string, req UpdatePostRequest, image *uploads.File) (string, error)
	DeletePost(ctx context.Context, actor *auth.Claims, id string) (string, error)
}

// FormParser parses multipart uploads. *uploads.Uploader implements it.
type FormParser interface {
	Parse(r *http.Request) (*uploads.Form, error)
}

// Handlers serves /api/v1/posts.
type Handlers struct {
	service PostService
	forms   FormParser
}

func NewHandlers(service PostService, forms FormParser) *Handlers {
	return &Handlers{service: service, forms: forms}
}

// Routes mounts the post endpoints. Reads are public.
func (h *Handlers) Routes(tokens *auth.Tokens) chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.HandleListPosts)
	r.Get("/{id}", h.HandleGetPost)

	r.Group(func(r chi.Router) {
		r.Use(auth.Authorize(tokens, auth.RoleUser, auth.RoleAdmin, auth.RoleSuperAdmin))
		r.Post("/", h.HandleCreatePost)
		r.Patch("/{id}", h.HandleUpdatePost)
		r.Delete("/{id}", h.HandleDeletePost)
	})
	return r
}

// readBody decodes dst from a JSON body or from a multipart form whose
// `data` field holds the JSON document, and returns the uploaded image.
func (h *Handlers) readBody(w http.ResponseWriter, r *http.Request, dst any) (*uploads.File, error) {
	if !uploads.IsMultipart(r) {
		return nil, httpx.Decode(w, r, dst)
	}
	form, err := h.forms.Parse(r)
	if err != nil {
		return nil, err
	}
	if err := httpx.DecodeString(form.Value("data"), dst); err != nil {
		return nil, err
	}
	return form.First(uploads.FieldImage), nil
}

// HandleCreatePost godoc
// @Summary Create a post
// @Description JSON body, or multipart with a `data` JSON field and an optional `image` file. A duplicate title is reported in the message.
// @Tags posts
// @Accept json,mpfd
// @Produce json
// @Security BearerAuth
// @Param data formData string true "CreatePostRequest as JSON"
// @Param image formData file false "Post image"
// @Success 200 {object} httpx.Response
// @Failure 400 {object} apperror.ErrorResponse
// @Failure 401 {object} apperror.ErrorResponse
// @Router /posts [post]
func (h *Handlers) HandleCreatePost(w http.ResponseWriter, r *http.Request) {
	claims, err := auth.RequireClaims(r.Context())
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	var req CreatePostRequest
	image, err := h.readBody(w, r, &req)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	message, err := h.service.CreatePost(r.Context(), claims.UserID, req, image)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.OK(w, message, nil)
}

// HandleGetPost godoc
// @Summary Get a post
// @Tags posts
// @Produce json
// @Param id path string true "Post ID"
// @Success 200 {object} PostResponse
// @Router /posts/{id} [get]
func (h *Handlers) HandleGetPost(w http.ResponseWriter, r *http.Request) {
	post, message, err := h.service.GetPost(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	if post == nil {
		httpx.OK(w, message, nil)
		return
	}
	httpx.OK(w, message, post)
}

// HandleListPosts godoc
// @Summary List posts
// @Description Any query parameter besides searchTerm, sort, page, limit and fields filters by equality.
// @Tags posts
// @Produce json
// @Param searchTerm query string false "Case-insensitive match on title or description"
// @Param sort query string false "Comma-separated fields, '-' for descending" default(-createdAt)
// @Param fields query string false "Comma-separated projection, '-' to exclude"
// @Param page query int false "Page number" default(1)
// @Param limit query int false "Page size" default(10)
// @Success 200 {object} PostListResponse
// @Failure 400 {object} apperror.ErrorResponse
// @Router /posts [get]
func (h *Handlers) HandleListPosts(w http.ResponseWriter, r *http.Request) {
	docs, meta, err := h.service.ListPosts(r.Context(), httpx.QueryParams(r))
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.Send(w, httpx.Response{
		StatusCode: http.StatusOK,
		Message:    "Posts retrieved successfully",
		Data:       docs,
		Pagination: &meta,
	})
}

// HandleUpdatePost godoc
// @Summary Update a post
// @Description Creators may update their own posts; admins may update any.
// @Tags posts
// @Accept json,mpfd
// @Produce json
// @Security BearerAuth
// @Param id path string true "Post ID"
// @Param data formData string false "UpdatePostRequest as JSON"
// @Param image formData file false "Replacement image"
// @Success 200 {object} httpx.Response
// @Failure 400 {object} apperror.ErrorResponse
// @Failure 403 {object} apperror.ErrorResponse
// @Failure 409 {object} apperror.ErrorResponse
// @Router /posts/{id} [patch]
func (h *Handlers) HandleUpdatePost(w http.ResponseWriter, r *http.Request) {
	claims, err := auth.RequireClaims(r.Context())
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	var req UpdatePostRequest
	image, err := h.readBody(w, r, &req)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	message, err := h.service.UpdatePost(r.Context(), claims, chi.URLParam(r, "id"), req, image)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.OK(w, message, nil)
}

// HandleDeletePost godoc
// @Summary Delete a post
// @Tags posts
// @Produce json
// @Security BearerAuth
// @Param id path string true "Post ID"
// @Success 200 {object} httpx.Response
// @Failure 403 {object} apperror.ErrorResponse
// @Router /posts/{id} [delete]
func (h *Handlers) HandleDeletePost(w http.ResponseWriter, r *http.Request) {
	claims, err := auth.RequireClaims(r.Context())
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	message, err := h.service.DeletePost(r.Context(), claims, chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.OK(w, message, nil)
}
