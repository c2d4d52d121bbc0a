package users

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/user/postboard-go/mailer"
	"github.com/user/postboard-go/uploads"
)

type fakeStore struct {
	mu        sync.Mutex
	users     map[string]*User
	createErr error
	updateErr error
	codes     []string
}

func newFakeStore(users ...*User) *fakeStore {
	s := &fakeStore{users: make(map[string]*User)}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

func (s *fakeStore) FindByID(_ context.Context, id string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *fakeStore) FindByEmail(_ context.Context, email string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == strings.ToLower(email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *fakeStore) Create(_ context.Context, u *User) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u.CreatedAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	u.UpdatedAt = u.CreatedAt
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *fakeStore) UpdateProfile(_ context.Context, id string, c ProfileChanges) (*User, error) {
	if s.updateErr != nil {
		return nil, s.updateErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	if c.Name != nil {
		u.Name = *c.Name
	}
	if c.Contact != nil {
		u.Contact = *c.Contact
	}
	if c.Location != nil {
		u.Location = *c.Location
	}
	if c.Image != nil {
		u.Image = *c.Image
	}
	u.Version++
	cp := *u
	return &cp, nil
}

func (s *fakeStore) SetOneTimeCode(_ context.Context, id, code string, expireAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	u.Authentication.OneTimeCode = code
	u.Authentication.ExpireAt = &expireAt
	s.codes = append(s.codes, code)
	return nil
}

func (s *fakeStore) MarkVerified(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	u.Verified = true
	u.Authentication.OneTimeCode, u.Authentication.ExpireAt = "", nil
	return nil
}

func (s *fakeStore) StartPasswordReset(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	u.Authentication = Authentication{IsResetPassword: true}
	return nil
}

func (s *fakeStore) SetPassword(_ context.Context, id, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	u.Password = hash
	u.Authentication.IsResetPassword = false
	return nil
}

func (s *fakeStore) ClearExpiredCodes(_ context.Context, now time.Time) (int64, error) {
	return 0, nil
}

type fakeFiles struct {
	stored  []string
	removed []string
	err     error
}

func (f *fakeFiles) Store(_ context.Context, file *uploads.File) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	path := "/uploads/" + file.Field + "/" + file.StoredName
	f.stored = append(f.stored, path)
	return path, nil
}

func (f *fakeFiles) Remove(_ context.Context, path string) {
	if path != "" {
		f.removed = append(f.removed, path)
	}
}

type recordingMail struct {
	mu   sync.Mutex
	sent []mailer.Message
}

func (m *recordingMail) Send(_ context.Context, msg mailer.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

type recordingPublisher struct {
	topics []string
	events []any
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, event any) error {
	p.topics = append(p.topics, topic)
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }
