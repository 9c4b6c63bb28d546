package subscription

import (
	"errors"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// StripeConfig holds configuration for the Stripe provider.
type StripeConfig struct {
	Enabled       bool   `env:"STRIPE_ENABLED" envDefault:"false"`
	SecretKey     string `env:"STRIPE_SECRET_KEY" validate:"required"`
	WebhookSecret string `env:"STRIPE_WEBHOOK_SECRET" validate:"required"`
}

// PaddleConfig holds configuration for the Paddle provider.
type PaddleConfig struct {
	Enabled       bool   `env:"PADDLE_ENABLED" envDefault:"false"`
	APIKey        string `env:"PADDLE_API_KEY" validate:"required"`
	WebhookSecret string `env:"PADDLE_WEBHOOK_SECRET" validate:"required"`
	Environment   string `env:"PADDLE_ENVIRONMENT" envDefault:"production" validate:"omitempty,oneof=production sandbox"`
}

// LemonSqueezyConfig holds configuration for the Lemon Squeezy provider.
type LemonSqueezyConfig struct {
	Enabled       bool   `env:"LEMON_SQUEEZY_ENABLED" envDefault:"false"`
	APIKey        string `env:"LEMON_SQUEEZY_API_KEY" validate:"required"`
	StoreID       string `env:"LEMON_SQUEEZY_STORE_ID" validate:"required,numeric"`
	WebhookSecret string `env:"LEMON_SQUEEZY_WEBHOOK_SECRET" validate:"required"`
	BaseURL       string `env:"LEMON_SQUEEZY_BASE_URL" envDefault:"https://api.lemonsqueezy.com/v1" validate:"required,url"`
}

func validateConfig(cfg any) error {
	if err := validate.Struct(cfg); err != nil {
		return errors.Join(ErrInvalidProviderConfig, err)
	}
	return nil
}
