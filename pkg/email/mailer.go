package email

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Sender delivers a single transactional email.
type Sender interface {
	SendEmail(ctx context.Context, params SendEmailParams) error
}

// SendEmailParams describes one outgoing email.
type SendEmailParams struct {
	SendTo   string `json:"send_to" validate:"required,email"`
	Subject  string `json:"subject" validate:"required,max=200"`
	BodyHTML string `json:"body_html" validate:"required"`
	BodyText string `json:"body_text,omitempty"`
	Tag      string `json:"tag,omitempty" validate:"omitempty,max=1000"`
}

// Validate checks the recipient address and required content.
func (p SendEmailParams) Validate() error {
	if err := validate.Struct(p); err != nil {
		return errors.Join(ErrInvalidParams, err)
	}
	return nil
}
