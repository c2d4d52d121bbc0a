package posts

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/user/postboard-go/apperror"
	"github.com/user/postboard-go/auth"
	"github.com/user/postboard-go/events"
	"github.com/user/postboard-go/listquery"
	"github.com/user/postboard-go/uploads"
)

// Messages returned to clients.
const (
	MsgPostCreated   = "Post created successfully!"
	MsgPostExists    = "Post already exist!"
	MsgPostMissing   = "Post does not exist!"
	MsgPostRetrieved = "Post retrieved successfully"
	MsgPostUpdated   = "Post updated successfully!"
	MsgPostDeleted   = "Post deleted successfully!"
	msgNotOwner      = "You don't have permission to modify this post"
)

var (
	searchableFields = []string{"title", "description"}
	populatePaths    = []string{"creatorId"}
	populateSelects  = map[string]string{"creatorId": "name email"}
)

// FileStore stores and removes uploaded files. *uploads.Uploader
// implements it.
type FileStore interface {
	Store(ctx context.Context, f *uploads.File) (string, error)
	Remove(ctx context.Context, path string)
}

// Service implements the post operations.
type Service struct {
	store  Store
	list   listquery.Collection
	files  FileStore
	events events.Publisher
	logger logrus.FieldLogger
	now    func() time.Time
}

// NewService creates a Service.
func NewService(store Store, list listquery.Collection, files FileStore, pub events.Publisher, logger logrus.FieldLogger) *Service {
	return &Service{store: store, list: list, files: files, events: pub, logger: logger, now: time.Now}
}

// CreatePost creates a post owned by creatorID. A taken title is reported
// through the message, not as an error, and the image is never stored.
func (s *Service) CreatePost(ctx context.Context, creatorID string, req CreatePostRequest, image *uploads.File) (string, error) {
	exists, err := s.store.TitleExists(ctx, req.Title)
	if err != nil {
		return "", apperror.NewDatabaseError("failed to check post title", err)
	}
	if exists {
		return MsgPostExists, nil
	}

	p := &Post{
		ID:          uuid.NewString(),
		CreatorID:   creatorID,
		Title:       req.Title,
		Description: req.Description,
	}
	if image != nil {
		if p.Image, err = s.files.Store(ctx, image); err != nil {
			return "", err
		}
	}

	if err := s.store.Create(ctx, p); err != nil {
		s.files.Remove(ctx, p.Image)
		if errors.Is(err, ErrTitleTaken) {
			return MsgPostExists, nil
		}
		return "", apperror.NewBadRequestError("Failed to create post", err)
	}

	s.logger.WithFields(logrus.Fields{"post_id": p.ID, "creator_id": creatorID}).Info("post created")
	events.Emit(ctx, s.events, s.logger, events.TopicPostCreated, events.PostCreated{
		PostID: p.ID, CreatorID: p.CreatorID, Title: p.Title, OccurredAt: p.CreatedAt,
	})
	return MsgPostCreated, nil
}

// find returns ErrNotFound for ids that are not uuids.
func (s *Service) find(ctx context.Context, id string) (*Post, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	return s.store.FindByID(ctx, id)
}

// GetPost returns the post with id. A missing post yields nil data and a
// message rather than an error.
func (s *Service) GetPost(ctx context.Context, id string) (*Post, string, error) {
	p, err := s.find(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, MsgPostMissing, nil
	}
	if err != nil {
		return nil, "", apperror.NewDatabaseError("failed to get post", err)
	}
	return p, MsgPostRetrieved, nil
}

// ListPosts runs the post listing with the creator's name and email
// populated.
func (s *Service) ListPosts(ctx context.Context, params listquery.Params) ([]listquery.Document, listquery.Pagination, error) {
	b := listquery.New(s.list, params).
		Search(searchableFields...).
		Filter().
		Sort().
		Paginate().
		Fields().
		Populate(populatePaths, populateSelects)

	docs, err := b.Find(ctx)
	if err != nil {
		return nil, listquery.Pagination{}, wrapListError(err)
	}
	meta, err := b.PaginationInfo(ctx)
	if err != nil {
		return nil, listquery.Pagination{}, wrapListError(err)
	}
	return docs, meta, nil
}

func wrapListError(err error) error {
	if _, ok := apperror.FromError(err); ok {
		return err
	}
	return apperror.NewDatabaseError("failed to list posts", err)
}

// canModify reports whether actor may change p: its creator or an admin.
func canModify(actor *auth.Claims, p *Post) bool {
	return actor.Role == auth.RoleAdmin || actor.Role == auth.RoleSuperAdmin || actor.UserID == p.CreatorID
}

// UpdatePost applies a partial update. A new image replaces the stored one
// only after the update succeeds.
func (s *Service) UpdatePost(ctx context.Context, actor *auth.Claims, id string, req UpdatePostRequest, image *uploads.File) (string, error) {
	existing, err := s.find(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return MsgPostMissing, nil
	}
	if err != nil {
		return "", apperror.NewDatabaseError("failed to get post", err)
	}
	if !canModify(actor, existing) {
		return "", apperror.NewForbiddenError(msgNotOwner, nil)
	}

	changes := PostChanges{Title: req.Title, Description: req.Description}
	if image != nil {
		path, err := s.files.Store(ctx, image)
		if err != nil {
			return "", err
		}
		changes.Image = &path
	}

	updated, err := s.store.Update(ctx, id, changes)
	if err != nil {
		if changes.Image != nil {
			s.files.Remove(ctx, *changes.Image)
		}
		switch {
		case errors.Is(err, ErrNotFound):
			return MsgPostMissing, nil
		case errors.Is(err, ErrTitleTaken):
			return "", apperror.NewConflictError(MsgPostExists, err)
		}
		return "", apperror.NewBadRequestError("Failed to update post", err)
	}
	if changes.Image != nil && existing.Image != "" && existing.Image != *changes.Image {
		s.files.Remove(ctx, existing.Image)
	}

	events.Emit(ctx, s.events, s.logger, events.TopicPostUpdated, events.PostUpdated{
		PostID: updated.ID, Changes: changes.fields(), OccurredAt: updated.UpdatedAt,
	})
	return MsgPostUpdated, nil
}

func (c PostChanges) fields() map[string]any {
	m := make(map[string]any)
	if c.Title != nil {
		m["title"] = *c.Title
	}
	if c.Description != nil {
		m["description"] = *c.Description
	}
	if c.Image != nil {
		m["image"] = *c.Image
	}
	return m
}

// DeletePost removes a post and its image.
func (s *Service) DeletePost(ctx context.Context, actor *auth.Claims, id string) (string, error) {
	existing, err := s.find(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return MsgPostMissing, nil
	}
	if err != nil {
		return "", apperror.NewDatabaseError("failed to get post", err)
	}
	if !canModify(actor, existing) {
		return "", apperror.NewForbiddenError(msgNotOwner, nil)
	}

	deleted, err := s.store.Delete(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return MsgPostMissing, nil
	}
	if err != nil {
		return "", apperror.NewDatabaseError("failed to delete post", err)
	}

	s.files.Remove(ctx, deleted.Image)
	events.Emit(ctx, s.events, s.logger, events.TopicPostDeleted, events.PostDeleted{
		PostID: deleted.ID, OccurredAt: s.now(),
	})
	return MsgPostDeleted, nil
}
