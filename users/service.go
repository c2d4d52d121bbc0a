package users

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/user/postboard-go/apperror"
	"github.com/user/postboard-go/auth"
	"github.com/user/postboard-go/config"
	"github.com/user/postboard-go/events"
	"github.com/user/postboard-go/httpx"
	"github.com/user/postboard-go/listquery"
	"github.com/user/postboard-go/mailer"
	"github.com/user/postboard-go/uploads"
)

// Messages returned by CreateUser.
const (
	MsgUserCreated      = "User created successfully! Please verify your account"
	MsgUserExistsVerify = "User already exist! Please verify your account"
	MsgUserExistsLogin  = "User already exist! Please Login"
)

const (
	msgUserDoesNotExist   = "User doesn't exist!"
	superAdminDefaultName = "Administrator"
)

var searchableFields = []string{"name", "email"}

// FileStore stores and removes uploaded files. *uploads.Uploader
// implements it.
type FileStore interface {
	Store(ctx context.Context, f *uploads.File) (string, error)
	Remove(ctx context.Context, path string)
}

// Deps are the collaborators of a Service.
type Deps struct {
	Store  Store
	List   listquery.Collection
	Files  FileStore
	Mail   mailer.Sender
	Events events.Publisher
	Auth   *config.AuthConfig
	Logger logrus.FieldLogger
}

// Service implements the user operations.
type Service struct {
	store  Store
	list   listquery.Collection
	files  FileStore
	mail   mailer.Sender
	events events.Publisher
	cfg    *config.AuthConfig
	logger logrus.FieldLogger
	now    func() time.Time
}

// NewService creates a Service.
func NewService(d Deps) *Service {
	return &Service{
		store:  d.Store,
		list:   d.List,
		files:  d.Files,
		mail:   d.Mail,
		events: d.Events,
		cfg:    d.Auth,
		logger: d.Logger,
		now:    time.Now,
	}
}

// CreateUser signs a user up. An email that is already verified is not
// touched. Otherwise a fresh verification code is emailed, and the returned
// message tells the caller which case applied.
func (s *Service) CreateUser(ctx context.Context, req CreateUserRequest) (string, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))

	existing, err := s.store.FindByEmail(ctx, email)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return "", apperror.NewDatabaseError("failed to look up user", err)
	}
	if existing != nil && existing.Verified {
		return MsgUserExistsLogin, nil
	}

	user, message := existing, MsgUserExistsVerify
	if existing == nil {
		user, err = s.insert(ctx, &User{
			Name:     req.Name,
			Role:     auth.RoleUser,
			Contact:  req.Contact,
			Email:    email,
			Location: req.Location,
		}, req.Password)
		if err != nil {
			return "", err
		}
		message = MsgUserCreated
		events.Emit(ctx, s.events, s.logger, events.TopicUserCreated, events.UserCreated{
			UserID: user.ID, Email: user.Email, Name: user.Name, OccurredAt: user.CreatedAt,
		})
	}

	code, err := s.storeOneTimeCode(ctx, user)
	if err != nil {
		return "", err
	}
	msg, err := mailer.CreateAccountMessage(mailer.CreateAccount{Name: user.Name, Email: user.Email, OTP: code})
	if err != nil {
		return "", apperror.NewInternalError("failed to render email", err)
	}
	s.send(ctx, msg)
	return message, nil
}

func (s *Service) insert(ctx context.Context, u *User, password string) (*User, error) {
	hash, err := auth.HashPassword(password, s.cfg.BcryptCost)
	if err != nil {
		return nil, apperror.NewInternalError("failed to hash password", err)
	}
	u.ID = uuid.NewString()
	u.Password = hash
	if u.Status == "" {
		u.Status = StatusActive
	}
	if err := s.store.Create(ctx, u); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, apperror.NewConflictError("email already exists", err)
		}
		return nil, apperror.NewDatabaseError("Failed to create user", err)
	}
	s.logger.WithFields(logrus.Fields{"user_id": u.ID, "role": u.Role}).Info("user created")
	return u, nil
}

// IssueOneTimeCode stores a fresh code for the user with email and mails it
// with the one-time code template.
func (s *Service) IssueOneTimeCode(ctx context.Context, email string) error {
	user, err := s.store.FindByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, ErrNotFound) {
		return apperror.NewBadRequestError(msgUserDoesNotExist, nil)
	}
	if err != nil {
		return apperror.NewDatabaseError("failed to look up user", err)
	}

	code, err := s.storeOneTimeCode(ctx, user)
	if err != nil {
		return err
	}
	msg, err := mailer.ResetPasswordMessage(mailer.ResetPassword{Email: user.Email, OTP: code})
	if err != nil {
		return apperror.NewInternalError("failed to render email", err)
	}
	s.send(ctx, msg)
	return nil
}

func (s *Service) storeOneTimeCode(ctx context.Context, u *User) (string, error) {
	code, err := auth.GenerateOTP()
	if err != nil {
		return "", apperror.NewInternalError("failed to generate code", err)
	}
	expireAt := s.now().Add(s.cfg.OTPExpiresIn)
	if err := s.store.SetOneTimeCode(ctx, u.ID, code, expireAt); err != nil {
		return "", apperror.NewDatabaseError("failed to store code", err)
	}
	return code, nil
}

// send hands msg to the mailer. Delivery problems are logged only.
func (s *Service) send(ctx context.Context, msg mailer.Message) {
	if err := s.mail.Send(ctx, msg); err != nil {
		s.logger.WithError(err).WithField("to", msg.To).Error("failed to send email")
	}
}

func (s *Service) findExisting(ctx context.Context, id string) (*User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperror.NewBadRequestError(msgUserDoesNotExist, nil)
	}
	user, err := s.store.FindByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, apperror.NewBadRequestError(msgUserDoesNotExist, nil)
	}
	if err != nil {
		return nil, apperror.NewDatabaseError("failed to get user", err)
	}
	return user, nil
}

// GetProfile returns the user with id.
func (s *Service) GetProfile(ctx context.Context, id string) (*User, error) {
	return s.findExisting(ctx, id)
}

// UpdateProfile applies a partial update. A new image is stored only once
// the user is known to exist, and the previous image is removed after the
// update succeeds.
func (s *Service) UpdateProfile(ctx context.Context, id string, req UpdateProfileRequest, image *uploads.File) (*User, error) {
	user, err := s.findExisting(ctx, id)
	if err != nil {
		return nil, err
	}

	if image != nil {
		path, err := s.files.Store(ctx, image)
		if err != nil {
			return nil, err
		}
		req.Image = &path
	}
	if req.empty() {
		return user, nil
	}

	updated, err := s.store.UpdateProfile(ctx, id, ProfileChanges{
		Name:     req.Name,
		Contact:  req.Contact,
		Location: req.Location,
		Image:    req.Image,
	})
	if err != nil {
		if req.Image != nil {
			s.files.Remove(ctx, *req.Image)
		}
		if errors.Is(err, ErrNotFound) {
			return nil, apperror.NewBadRequestError(msgUserDoesNotExist, nil)
		}
		return nil, apperror.NewDatabaseError("failed to update profile", err)
	}

	if req.Image != nil && user.Image != "" && user.Image != *req.Image {
		s.files.Remove(ctx, user.Image)
	}
	return updated, nil
}

// ListUsers runs the admin listing.
func (s *Service) ListUsers(ctx context.Context, params listquery.Params) ([]listquery.Document, listquery.Pagination, error) {
	b := listquery.New(s.list, params).
		Search(searchableFields...).
		Filter().
		Sort().
		Paginate().
		Fields()

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
	return apperror.NewDatabaseError("failed to list users", err)
}

// SeedSuperAdmin creates a verified SUPER_ADMIN with email unless an
// account with that email exists. Empty credentials skip seeding.
func (s *Service) SeedSuperAdmin(ctx context.Context, email, password string) error {
	if email == "" || password == "" {
		s.logger.Debug("super admin credentials not configured; skipping seed")
		return nil
	}
	email = strings.ToLower(strings.TrimSpace(email))
	_, err := s.store.FindByEmail(ctx, email)
	if err == nil {
		s.logger.WithField("email", email).Debug("super admin already exists")
		return nil
	}
	if !errors.Is(err, ErrNotFound) {
		return apperror.NewDatabaseError("failed to look up super admin", err)
	}

	_, err = s.insert(ctx, &User{
		Name:     superAdminDefaultName,
		Role:     auth.RoleSuperAdmin,
		Email:    email,
		Verified: true,
	}, password)
	return err
}

// ImportUsers creates the users listed in a JSON array. Entries whose email
// is already registered are skipped. Invalid entries abort the import
// before anything is written.
func (s *Service) ImportUsers(ctx context.Context, r io.Reader) (string, error) {
	var entries []ImportUser
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return "", apperror.NewBadRequestError("invalid users file: "+err.Error(), err)
	}
	for i := range entries {
		if err := httpx.Validate(&entries[i]); err != nil {
			return "", fmt.Errorf("entry %d: %w", i, err)
		}
	}

	var created, skipped int
	for _, e := range entries {
		email := strings.ToLower(strings.TrimSpace(e.Email))
		_, err := s.store.FindByEmail(ctx, email)
		if err == nil {
			skipped++
			continue
		}
		if !errors.Is(err, ErrNotFound) {
			return "", apperror.NewDatabaseError("failed to look up user", err)
		}

		role := auth.Role(e.Role)
		if role == "" {
			role = auth.RoleUser
		}
		if _, err := s.insert(ctx, &User{
			Name:     e.Name,
			Role:     role,
			Contact:  e.Contact,
			Email:    email,
			Location: e.Location,
			Verified: e.Verified,
		}, e.Password); err != nil {
			return "", err
		}
		created++
	}
	return fmt.Sprintf("%d users created, %d skipped", created, skipped), nil
}
