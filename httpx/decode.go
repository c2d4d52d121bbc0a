package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/user/postboard-go/apperror"
	"github.com/user/postboard-go/listquery"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their JSON names so errorMessages paths match the payload.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// Decode reads a JSON body into dst and validates it.
func Decode(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer body.Close()
	return decodeJSON(body, dst)
}

// DecodeString parses a JSON document held in a form field, as sent by
// multipart requests alongside files, and validates it. An empty string
// validates the zero value.
func DecodeString(s string, dst any) error {
	if strings.TrimSpace(s) == "" {
		return Validate(dst)
	}
	return decodeJSON(strings.NewReader(s), dst)
}

func decodeJSON(r io.Reader, dst any) error {
	if err := json.NewDecoder(r).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return apperror.NewBadRequestError("invalid request body: "+err.Error(), err)
	}
	return Validate(dst)
}

// Validate runs the `validate` struct tags of v. Failures become a
// ValidationError with one errorMessages entry per field.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperror.NewBadRequestError("invalid request", err)
	}
	msgs := make([]apperror.ErrorMessage, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, apperror.ErrorMessage{Path: fe.Field(), Message: fieldMessage(fe)})
	}
	return apperror.NewValidationError("Validation Error", err).WithMessages(msgs...)
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "email":
		return fmt.Sprintf("%s must be a valid email address", fe.Field())
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "len":
		return fmt.Sprintf("%s must be %s characters long", fe.Field(), fe.Param())
	case "numeric":
		return fmt.Sprintf("%s must be numeric", fe.Field())
	case "eqfield":
		return fmt.Sprintf("%s must match %s", fe.Field(), lowerFirst(fe.Param()))
	case "nefield":
		return fmt.Sprintf("%s must differ from %s", fe.Field(), lowerFirst(fe.Param()))
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed on the '%s' rule", fe.Field(), fe.Tag())
	}
}

// eqfield params name the Go field; the payload uses camelCase.
func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

// QueryParams returns the request's query string as list parameters,
// optionally restricted to the allowed keys.
func QueryParams(r *http.Request, allowed ...string) listquery.Params {
	p := listquery.ParamsFromValues(r.URL.Query())
	if len(allowed) == 0 {
		return p
	}
	return p.Pick(allowed...)
}
