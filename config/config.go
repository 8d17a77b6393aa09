// Package config contains code to set the default values and read
// config files to be used throughout the whole application
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/spf13/pflag"
	v "github.com/spf13/viper"
)

var (
	validLogLevels = []string{"debug", "info", "warn", "error", "fatal"}
	validDrivers   = []string{"sqlite", "postgres"}
)

// Default MIME allow-list for uploads. Overridable with upload.allowed_types.
var defaultAllowedTypes = []string{
	// Images
	"image/jpeg", "image/png", "image/gif", "image/webp", "image/svg+xml", "image/bmp", "image/tiff",
	// Video
	"video/mp4", "video/webm", "video/ogg", "video/mpeg", "video/quicktime", "video/x-msvideo", "video/x-matroska",
	// Audio
	"audio/mpeg", "audio/ogg", "audio/wav", "audio/webm", "audio/aac", "audio/flac", "audio/x-m4a",
	// Documents
	"application/pdf",
}

func genSecret() string {
	b := make([]byte, 64)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// Setup prepares everything config-related so that the app can
// start working. Function will return an error if something
// is critically wrong and the application can't run because of
// that.
func Setup() error {
	pflag.Parse()
	v.BindPFlags(pflag.CommandLine)

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")

	v.AutomaticEnv()

	//
	// ENVS
	//
	v.BindEnv("app.log_level", "app_log_level")

	v.BindEnv("host.port", "host_port")

	v.BindEnv("database.driver", "database_driver")
	v.BindEnv("database.dsn", "database_dsn")

	v.BindEnv("redis.addr", "redis_addr")
	v.BindEnv("redis.password", "redis_password")
	v.BindEnv("redis.db", "redis_db")

	v.BindEnv("storage.endpoint", "storage_endpoint")
	v.BindEnv("storage.region", "storage_region")
	v.BindEnv("storage.access_key_id", "storage_access_key_id")
	v.BindEnv("storage.secret_access_key", "storage_secret_access_key")
	v.BindEnv("storage.bucket", "storage_bucket")
	v.BindEnv("storage.public_url", "storage_public_url")

	v.BindEnv("staging.dir", "staging_dir")
	v.BindEnv("staging.root", "staging_root")

	v.BindEnv("upload.max_size", "upload_max_size")
	v.BindEnv("upload.allowed_types", "upload_allowed_types")

	v.BindEnv("jwt.secret", "jwt_secret")

	//
	// Defaults
	//
	v.SetDefault("app.log_level", "info")

	v.SetDefault("host.port", 8080)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "database.db")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("storage.region", "us-east-1")

	v.SetDefault("staging.dir", "uploads")
	v.SetDefault("staging.root", ".")

	v.SetDefault("upload.max_size", 150)
	v.SetDefault("upload.allowed_types", defaultAllowedTypes)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(v.ConfigFileNotFoundError); ok {
			return errors.New("config.toml file is missing")
		}

		return fmt.Errorf("failed to read config file, %w", err)
	}

	if !slices.Contains(validLogLevels, v.GetString("app.log_level")) {
		return errors.New("invalid log level provided")
	}

	if v.GetInt("host.port") <= 0 {
		return errors.New("invalid port provided")
	}

	if !slices.Contains(validDrivers, v.GetString("database.driver")) {
		return errors.New("invalid database driver provided")
	}

	if v.GetString("database.dsn") == "" {
		return errors.New("database dsn can't be empty")
	}

	if v.GetString("redis.addr") == "" {
		return errors.New("redis address can't be empty")
	}

	if v.GetString("storage.endpoint") == "" {
		return errors.New("storage endpoint can't be empty")
	}
	if v.GetString("storage.access_key_id") == "" {
		return errors.New("storage access key id can't be empty")
	}
	if v.GetString("storage.secret_access_key") == "" {
		return errors.New("storage secret access key can't be empty")
	}
	if v.GetString("storage.bucket") == "" {
		return errors.New("storage bucket can't be empty")
	}

	// The URL prefix written into processed records. For a MinIO style
	// deployment this is simply endpoint/bucket.
	if v.GetString("storage.public_url") == "" {
		v.Set("storage.public_url", fmt.Sprintf("%s/%s",
			v.GetString("storage.endpoint"), v.GetString("storage.bucket")))
	}

	if v.GetInt("upload.max_size") <= 0 {
		return errors.New("upload.max_size must be bigger than 0")
	}

	if v.GetString("jwt.secret") == "" {
		fmt.Println("WARNING: You haven't set a JWT secret, so it has been generated for you. Please set it as an environment variable or in the config.toml file.\nYour random JWT secret:\n\n" + genSecret() + "\n\nPaste it into your config.toml file.")
		os.Exit(0)
	}

	v.Set("upload.max_size", v.GetInt64("upload.max_size")<<20)
	return nil
}
