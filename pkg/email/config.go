package email

// Config holds email settings loaded from POSTMARK_* and EMAIL_* variables.
// Without a server token the CLI falls back to DevSender.
type Config struct {
	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	SenderEmail          string `env:"EMAIL_SENDER,required" validate:"required,email"`
	SupportEmail         string `env:"EMAIL_SUPPORT,required" validate:"required,email"`
	DevOutputDir         string `env:"EMAIL_DEV_OUTPUT_DIR" envDefault:"./tmp/emails"`
}
