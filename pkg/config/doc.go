// Package config loads environment-driven configuration structs.
//
// It combines github.com/joho/godotenv for .env files with
// github.com/caarlos0/env/v11 for struct parsing, and caches every parsed
// type for the life of the process. LoadWithPrefix lets the same struct be
// loaded for several components:
//
//	var app AppConfig
//	if err := config.Load(&app); err != nil {
//		return err
//	}
//
// ResetCache clears the cache between tests.
package config
