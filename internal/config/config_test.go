package config

import (
	"strings"
	"testing"
)

func TestLoad_RESTModeDefaults(t *testing.T) {
	t.Setenv("GATEWAY_MODE", "")
	t.Setenv("BACKEND_URL", "https://backend.test")
	t.Setenv("BACKEND_API_KEY", "anon-key")
	t.Setenv("ACCESS_TOKEN_MAX_AGE", "")
	t.Setenv("MEDIA_BUCKET", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.GatewayMode != ModeREST {
		t.Errorf("mode = %q, want default %q", cfg.GatewayMode, ModeREST)
	}
	if cfg.AccessTokenMaxAge != 900 {
		t.Errorf("token max age = %d, want default 900", cfg.AccessTokenMaxAge)
	}
	if cfg.MediaBucket != "media" {
		t.Errorf("bucket = %q, want default media", cfg.MediaBucket)
	}
}

func TestLoad_RESTModeRequiresBackendCredentials(t *testing.T) {
	t.Setenv("GATEWAY_MODE", ModeREST)
	t.Setenv("BACKEND_URL", "https://backend.test")
	t.Setenv("BACKEND_API_KEY", "")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "BACKEND_API_KEY") {
		t.Fatalf("err = %v, want missing BACKEND_API_KEY diagnostic", err)
	}
}

func TestLoad_DirectModeRequiresDatabaseAndSecret(t *testing.T) {
	t.Setenv("GATEWAY_MODE", ModeDirect)
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("DB_USER", "app")
	t.Setenv("DB_NAME", "app")
	t.Setenv("JWT_SECRET", "")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "JWT_SECRET") {
		t.Fatalf("err = %v, want missing JWT_SECRET diagnostic", err)
	}

	t.Setenv("JWT_SECRET", "secret")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.GatewayMode != ModeDirect || cfg.DBName != "app" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoad_RejectsUnknownMode(t *testing.T) {
	t.Setenv("GATEWAY_MODE", "ftp")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "GATEWAY_MODE") {
		t.Fatalf("err = %v, want unknown mode diagnostic", err)
	}
}
