package users

// CreateUserRequest is the signup payload.
type CreateUserRequest struct {
	Name     string `json:"name" validate:"required" example:"Ada Lovelace"`
	Email    string `json:"email" validate:"required,email" example:"ada@example.com"`
	Password string `json:"password" validate:"required,min=8" example:"correct-horse-battery"`
	Contact  string `json:"contact,omitempty" example:"+4420123456"`
	Location string `json:"location,omitempty" example:"London"`
}

// UpdateProfileRequest is a partial profile update. Nil fields are left
// unchanged. Image is set by the service from an uploaded file.
type UpdateProfileRequest struct {
	Name     *string `json:"name,omitempty" validate:"omitempty,min=1" example:"Ada King"`
	Contact  *string `json:"contact,omitempty" example:"+4420123456"`
	Location *string `json:"location,omitempty" example:"London"`
	Image    *string `json:"-"`
}

func (r UpdateProfileRequest) empty() bool {
	return r.Name == nil && r.Contact == nil && r.Location == nil && r.Image == nil
}

// ImportUser is one entry of a seed file.
type ImportUser struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Role     string `json:"role,omitempty" validate:"omitempty,oneof=USER ADMIN SUPER_ADMIN"`
	Contact  string `json:"contact,omitempty"`
	Location string `json:"location,omitempty"`
	Verified bool   `json:"verified,omitempty"`
}

// UserListResponse documents the listing envelope.
type UserListResponse struct {
	Success    bool           `json:"success" example:"true"`
	StatusCode int            `json:"statusCode" example:"200"`
	Message    string         `json:"message" example:"Users retrieved successfully"`
	Data       []User         `json:"data"`
	Pagination PaginationMeta `json:"pagination"`
}

// PaginationMeta documents listquery.Pagination for swag.
type PaginationMeta struct {
	Total     int64 `json:"total" example:"45"`
	Limit     int   `json:"limit" example:"10"`
	Page      int   `json:"page" example:"1"`
	TotalPage int   `json:"totalPage" example:"5"`
}

// ProfileResponse documents the profile envelope.
type ProfileResponse struct {
	Success    bool   `json:"success" example:"true"`
	StatusCode int    `json:"statusCode" example:"200"`
	Message    string `json:"message" example:"Profile data retrieved successfully"`
	Data       User   `json:"data"`
}
