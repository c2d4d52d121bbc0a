// Package uploads handles multipart file uploads: it validates the form
// fields and detected content types, names stored files and hands the bytes
// to a Storage backend.
//
// Parsing and storing are separate steps. A handler parses the request up
// front, and the service stores a file only once it knows the record the file
// belongs to will be written.
package uploads

import (
	"context"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/sirupsen/logrus"

	"github.com/user/postboard-go/apperror"
)

// Field names accepted in multipart requests.
const (
	FieldImage = "image"
	FieldMedia = "media"
	FieldDoc   = "doc"
)

// defaultMaxMemory is how much of a multipart body is kept in memory before
// spilling to temporary files.
const defaultMaxMemory = 32 << 20

// FieldRule restricts the files accepted for one form field.
type FieldRule struct {
	MaxCount int
	Types    []string
	// Message is returned when a file's detected type is not in Types.
	Message string
}

func (r FieldRule) allows(contentType string) bool {
	for _, t := range r.Types {
		if t == contentType {
			return true
		}
	}
	return false
}

// DefaultRules are the upload fields the API accepts.
var DefaultRules = map[string]FieldRule{
	FieldImage: {MaxCount: 3, Types: []string{"image/jpeg", "image/png", "image/jpg"}, Message: "Only .jpeg, .png, .jpg file supported"},
	FieldMedia: {MaxCount: 3, Types: []string{"video/mp4", "audio/mpeg"}, Message: "Only .mp4, .mp3 files are supported"},
	FieldDoc:   {MaxCount: 3, Types: []string{"application/pdf"}, Message: "Only PDF files supported"},
}

// File is a validated upload that has not been stored yet.
type File struct {
	Field       string
	Filename    string // as sent by the client
	StoredName  string
	ContentType string // detected from the content
	Size        int64

	header *multipart.FileHeader
}

// Open returns the file's content.
func (f *File) Open() (io.ReadCloser, error) {
	return f.header.Open()
}

// Form is a parsed multipart request.
type Form struct {
	Values map[string][]string
	Files  map[string][]*File
}

// Value returns the first value of a text field.
func (f *Form) Value(key string) string {
	if f == nil || len(f.Values[key]) == 0 {
		return ""
	}
	return f.Values[key][0]
}

// First returns the first file uploaded for field, or nil.
func (f *Form) First(field string) *File {
	if f == nil || len(f.Files[field]) == 0 {
		return nil
	}
	return f.Files[field][0]
}

// Storage persists uploaded bytes. Save returns the public path of the stored
// object, which is what gets recorded on entities and later passed to Remove.
type Storage interface {
	Save(ctx context.Context, folder, name, contentType string, r io.Reader) (string, error)
	Remove(ctx context.Context, path string) error
}

// Uploader parses multipart requests and stores their files.
type Uploader struct {
	storage   Storage
	rules     map[string]FieldRule
	maxMemory int64
	logger    logrus.FieldLogger
	now       func() time.Time
}

// NewUploader creates an Uploader that accepts DefaultRules.
func NewUploader(storage Storage, logger logrus.FieldLogger) *Uploader {
	return &Uploader{
		storage:   storage,
		rules:     DefaultRules,
		maxMemory: defaultMaxMemory,
		logger:    logger,
		now:       time.Now,
	}
}

// IsMultipart reports whether r carries a multipart/form-data body.
func IsMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}

// Parse reads the multipart body of r and validates every file in it.
// Unknown fields, too many files and disallowed content types are rejected
// with a BadRequest error before anything is stored.
func (u *Uploader) Parse(r *http.Request) (*Form, error) {
	if err := r.ParseMultipartForm(u.maxMemory); err != nil {
		return nil, apperror.NewBadRequestError("invalid multipart form: "+err.Error(), err)
	}
	form := &Form{Values: r.MultipartForm.Value, Files: make(map[string][]*File)}

	fields := make([]string, 0, len(r.MultipartForm.File))
	for field := range r.MultipartForm.File {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	for _, field := range fields {
		headers := r.MultipartForm.File[field]
		rule, ok := u.rules[field]
		if !ok {
			return nil, apperror.NewBadRequestError("File is not supported", nil).WithMessages(
				apperror.ErrorMessage{Path: field, Message: "File is not supported"})
		}
		if len(headers) > rule.MaxCount {
			msg := fmt.Sprintf("At most %d files are allowed for %s", rule.MaxCount, field)
			return nil, apperror.NewBadRequestError(msg, nil).WithMessages(
				apperror.ErrorMessage{Path: field, Message: msg})
		}
		for _, fh := range headers {
			f, err := u.inspect(field, rule, fh)
			if err != nil {
				return nil, err
			}
			form.Files[field] = append(form.Files[field], f)
		}
	}
	return form, nil
}

func (u *Uploader) inspect(field string, rule FieldRule, fh *multipart.FileHeader) (*File, error) {
	src, err := fh.Open()
	if err != nil {
		return nil, apperror.NewBadRequestError("could not read uploaded file", err)
	}
	defer src.Close()

	detected, err := mimetype.DetectReader(src)
	if err != nil {
		return nil, apperror.NewBadRequestError("could not read uploaded file", err)
	}
	contentType := detected.String()
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	if !rule.allows(contentType) {
		return nil, apperror.NewBadRequestError(rule.Message, nil).WithMessages(
			apperror.ErrorMessage{Path: field, Message: rule.Message})
	}

	return &File{
		Field:       field,
		Filename:    fh.Filename,
		StoredName:  StoredFileName(fh.Filename, u.now()),
		ContentType: contentType,
		Size:        fh.Size,
		header:      fh,
	}, nil
}

// Store saves f in the folder named after its field and returns its path.
func (u *Uploader) Store(ctx context.Context, f *File) (string, error) {
	src, err := f.Open()
	if err != nil {
		return "", apperror.NewInternalError("could not read uploaded file", err)
	}
	defer src.Close()

	path, err := u.storage.Save(ctx, f.Field, f.StoredName, f.ContentType, src)
	if err != nil {
		return "", apperror.NewExternalServiceError("failed to store uploaded file", err)
	}
	u.logger.WithFields(logrus.Fields{"path": path, "size": f.Size}).Debug("stored upload")
	return path, nil
}

// Remove deletes a previously stored file. An empty path is a no-op and
// failures are only logged: a leftover file is not worth failing a request.
func (u *Uploader) Remove(ctx context.Context, path string) {
	if path == "" {
		return
	}
	if err := u.storage.Remove(ctx, path); err != nil {
		u.logger.WithError(err).WithField("path", path).Warn("failed to remove stored file")
	}
}

// StoredFileName derives the stored name of an upload: the client's base name
// lower-cased with spaces replaced by dashes, then the upload time in unix
// milliseconds, then the original extension.
func StoredFileName(original string, now time.Time) string {
	base := filepath.Base(strings.ReplaceAll(original, `\`, "/"))
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	stem = strings.Join(strings.Split(strings.ToLower(stem), " "), "-")
	return stem + "-" + strconv.FormatInt(now.UnixMilli(), 10) + ext
}
