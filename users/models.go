// Package users manages accounts and profiles: signup with email
// verification, profile reads and updates, and the admin user listing.
package users

import (
	"time"

	"github.com/user/postboard-go/auth"
	"github.com/user/postboard-go/listquery"
)

// Status marks whether an account is usable.
type Status string

const (
	StatusActive Status = "active"
	StatusDelete Status = "delete"
)

// Authentication is the one-time code and reset state of an account.
// It is never serialized.
type Authentication struct {
	IsResetPassword bool
	OneTimeCode     string
	ExpireAt        *time.Time
}

// User is an account as stored in the users table.
type User struct {
	ID             string         `json:"id" example:"3f2a6f0e-8c1d-4d8e-9a51-1b2f0c3d4e5f"`
	Name           string         `json:"name" example:"Ada Lovelace"`
	Role           auth.Role      `json:"role" example:"USER"`
	Contact        string         `json:"contact,omitempty" example:"+4420123456"`
	Email          string         `json:"email" example:"ada@example.com"`
	Password       string         `json:"-"`
	Location       string         `json:"location,omitempty" example:"London"`
	Image          string         `json:"image,omitempty" example:"/uploads/image/ada-1700000000000.png"`
	Status         Status         `json:"status" example:"active"`
	Verified       bool           `json:"verified" example:"true"`
	Version        int            `json:"-"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
	Authentication Authentication `json:"-"`
}

// Table describes the users table to list queries. Password and one-time
// code columns are left out so they can never be projected.
var Table = &listquery.Table{
	Name: "users",
	Columns: []listquery.Column{
		{Field: "id", Name: "id", Type: "uuid"},
		{Field: "name", Name: "name"},
		{Field: "role", Name: "role"},
		{Field: "contact", Name: "contact"},
		{Field: "email", Name: "email"},
		{Field: "location", Name: "location"},
		{Field: "image", Name: "image"},
		{Field: "status", Name: "status"},
		{Field: "verified", Name: "verified", Type: "boolean"},
		{Field: "__v", Name: "version", Type: "integer"},
		{Field: "createdAt", Name: "created_at", Type: "timestamptz"},
		{Field: "updatedAt", Name: "updated_at", Type: "timestamptz"},
	},
}
