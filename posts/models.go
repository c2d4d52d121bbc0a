// Package posts implements the post resource. Listing goes through
// listquery with the creator populated from the users table.
package posts

import (
	"time"

	"github.com/user/postboard-go/listquery"
	"github.com/user/postboard-go/users"
)

// Post is a row of the posts table.
type Post struct {
	ID          string    `json:"id" example:"9b1deb4d-3b7d-4bad-9bdd-2b0d7b3dcb6d"`
	CreatorID   string    `json:"creatorId" example:"3f2a6f0e-8c1d-4d8e-9a51-1b2f0c3d4e5f"`
	Title       string    `json:"title" example:"Hello board"`
	Description string    `json:"description" example:"First post"`
	Image       string    `json:"image,omitempty" example:"/uploads/image/cover-1700000000000.png"`
	Version     int       `json:"-"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Table describes the posts table to list queries.
var Table = &listquery.Table{
	Name: "posts",
	Columns: []listquery.Column{
		{Field: "id", Name: "id", Type: "uuid"},
		{Field: "creatorId", Name: "creator_id", Type: "uuid"},
		{Field: "title", Name: "title"},
		{Field: "description", Name: "description"},
		{Field: "image", Name: "image"},
		{Field: "__v", Name: "version", Type: "integer"},
		{Field: "createdAt", Name: "created_at", Type: "timestamptz"},
		{Field: "updatedAt", Name: "updated_at", Type: "timestamptz"},
	},
	Relations: map[string]listquery.Relation{
		"creatorId": {Column: "creator_id", Target: users.Table},
	},
}

// CreatePostRequest is the post payload, sent as JSON or as the `data`
// field of a multipart form.
type CreatePostRequest struct {
	Title       string `json:"title" validate:"required" example:"Hello board"`
	Description string `json:"description" validate:"required" example:"First post"`
}

// UpdatePostRequest is a partial post update.
type UpdatePostRequest struct {
	Title       *string `json:"title,omitempty" validate:"omitempty,min=1" example:"Hello again"`
	Description *string `json:"description,omitempty" example:"Edited"`
}

// PostResponse documents the single post envelope.
type PostResponse struct {
	Success    bool   `json:"success" example:"true"`
	StatusCode int    `json:"statusCode" example:"200"`
	Message    string `json:"message" example:"Post retrieved successfully"`
	Data       *Post  `json:"data"`
}

// PostListItem documents a listed post with its creator populated.
type PostListItem struct {
	Post
	CreatorID Creator `json:"creatorId"`
}

// Creator is the populated creatorId of a listed post.
type Creator struct {
	ID    string `json:"id" example:"3f2a6f0e-8c1d-4d8e-9a51-1b2f0c3d4e5f"`
	Name  string `json:"name" example:"Ada Lovelace"`
	Email string `json:"email" example:"ada@example.com"`
}

// PostListResponse documents the listing envelope.
type PostListResponse struct {
	Success    bool                 `json:"success" example:"true"`
	StatusCode int                  `json:"statusCode" example:"200"`
	Message    string               `json:"message" example:"Posts retrieved successfully"`
	Data       []PostListItem       `json:"data"`
	Pagination users.PaginationMeta `json:"pagination"`
}
