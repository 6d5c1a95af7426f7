package domain

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	validatorV10 "github.com/go-playground/validator/v10"

	"github.com/dunamismax/tileflow/internal/iiif"
)

const (
	SourceKindLocalFile   = "local_file"
	SourceKindObjectStore = "object_store"
)

// Source locates the full-resolution image a render job reads from.
type Source struct {
	Kind string `json:"kind" validate:"required,oneof=local_file object_store"`
	Key  string `json:"key" validate:"required"`
}

// RenderJob asks for one derivative to be rendered and stored ahead of time.
// Request holds an Image API URI or a bare
// {identifier}/{region}/{size}/{rotation}/{quality}.{format} path.
type RenderJob struct {
	ID          string    `json:"id" validate:"required"`
	Source      Source    `json:"source"`
	Request     string    `json:"request" validate:"required"`
	OutputKey   string    `json:"output_key,omitempty"`
	WebhookURL  string    `json:"webhook_url,omitempty" validate:"omitempty,url"`
	RequestedAt time.Time `json:"requested_at"`
}

var (
	validateOnce sync.Once
	validate     *validatorV10.Validate
)

func structValidator() *validatorV10.Validate {
	validateOnce.Do(func() {
		validate = validatorV10.New(validatorV10.WithRequiredStructEnabled())
	})
	return validate
}

// FieldError describes one invalid RenderJob field.
type FieldError struct {
	Field string
	Rule  string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("field '%s' failed '%s'", e.Field, e.Rule)
}

type ValidationErrors []FieldError

func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "render job validation failed"
	}
	parts := make([]string, 0, len(ve))
	for _, fe := range ve {
		parts = append(parts, fe.Error())
	}
	return "render job validation failed: " + strings.Join(parts, "; ")
}

// Validate checks the envelope of the job. The image request itself is
// checked by ImageRequest.
func (j RenderJob) Validate() error {
	if err := structValidator().Struct(j); err != nil {
		var verrs validatorV10.ValidationErrors
		if errors.As(err, &verrs) {
			out := make(ValidationErrors, 0, len(verrs))
			for _, fe := range verrs {
				out = append(out, FieldError{Field: fe.Namespace(), Rule: fe.Tag()})
			}
			return out
		}
		return fmt.Errorf("validate render job: %w", err)
	}
	return nil
}

// ImageRequest parses and validates the job's Image API request.
func (j RenderJob) ImageRequest() (iiif.Request, error) {
	req := strings.TrimSpace(j.Request)
	if strings.Contains(req, "://") {
		return iiif.ParseURI(req)
	}
	return iiif.ParsePath(req)
}
