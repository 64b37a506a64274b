package config

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testSecretProvider struct {
	values     map[string]string
	err        error
	calledWith []string
	callCount  int
}

func (p *testSecretProvider) GetParametersBatch(_ context.Context, keys []string) (map[string]string, error) {
	p.callCount++
	p.calledWith = append(p.calledWith, keys...)
	if p.err != nil {
		return nil, p.err
	}
	result := make(map[string]string)
	for _, k := range keys {
		if v, ok := p.values[k]; ok {
			result[k] = v
		}
	}
	return result, nil
}

// testDeps uses the real environment (so t.Setenv applies) but never reads a
// .env file from the working directory.
func testDeps() loaderDeps {
	deps := defaultDeps()
	deps.loadEnv = func() error { return nil }
	return deps
}

func setSheetsEnv(t *testing.T) {
	t.Helper()
	t.Setenv("APP_ENV", "local")
	t.Setenv("GOOGLE_CREDENTIALS", `{"type":"service_account"}`)
	t.Setenv("ROSTER_SHEET_ID", "roster-id")
	t.Setenv("FESTIVAL_SHEET_ID", "festival-id")
	t.Setenv("CUSTOM_SHEET_ID", "custom-id")
	t.Setenv("MAIL_LOG_SHEET_ID", "log-id")
	t.Setenv("SMTP_HOST", "smtp.example.com")
	t.Setenv("EMAIL_USERNAME", "hr@example.com")
	t.Setenv("EMAIL_PASSWORD", "hunter2")
}

func TestLoadConfig_LocalDefaults(t *testing.T) {
	setSheetsEnv(t)

	cfg, err := loadConfigWithDeps(nil, testDeps())
	require.NoError(t, err)

	assert.Equal(t, "local", cfg.Environment)
	assert.Equal(t, "smtp", cfg.Mail.Provider)
	assert.Equal(t, 587, cfg.Mail.SMTPPort)
	assert.Equal(t, "hr@example.com", cfg.Mail.SenderAddress())
	assert.Equal(t, "hunter2", cfg.Mail.Password.Unmask())
	assert.Equal(t, 5, cfg.Dispatch.ChunkSize)
	assert.Equal(t, 3, cfg.Dispatch.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Dispatch.RetryBackoff)
	assert.Equal(t, "Asia/Kolkata", cfg.Dispatch.Timezone)
	assert.Equal(t, "Sheet1!A:F", cfg.Sheets.LogRange)
	assert.Equal(t, LockBackendNone, cfg.Lock.Backend)
	assert.False(t, cfg.Sheets.UseWorkbook())
	assert.Equal(t, "dev", cfg.Build.Version)
}

func TestLoadConfig_WorkbookModeNeedsNoSheetIDs(t *testing.T) {
	t.Setenv("APP_ENV", "local")
	t.Setenv("WORKBOOK_PATH", "testdata/greetings.xlsx")
	t.Setenv("MAIL_PROVIDER", "ses")
	t.Setenv("EMAIL_FROM_ADDRESS", "hr@example.com")

	cfg, err := loadConfigWithDeps(nil, testDeps())
	require.NoError(t, err)
	assert.True(t, cfg.Sheets.UseWorkbook())
	assert.Equal(t, "ses", cfg.Mail.Provider)
}

func TestLoadConfig_ValidationFailures(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing roster sheet", map[string]string{"ROSTER_SHEET_ID": ""}},
		{"smtp without host", map[string]string{"SMTP_HOST": ""}},
		{"unknown provider", map[string]string{"MAIL_PROVIDER": "pigeon"}},
		{"zero chunk size", map[string]string{"DISPATCH_CHUNK_SIZE": "0"}},
		{"postgres lock without url", map[string]string{"LOCK_BACKEND": "postgres"}},
		{"attachment without path", map[string]string{"MAIL_ATTACHMENT_NAME": "card.pdf"}},
		{"bad timezone", map[string]string{"DISPATCH_TIMEZONE": "Mars/Olympus"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setSheetsEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := loadConfigWithDeps(nil, testDeps())
			require.Error(t, err)

			var cfgErr *ConfigError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, ErrValidation, cfgErr.Type)
		})
	}
}

func TestLoadConfig_ParsingFailure(t *testing.T) {
	setSheetsEnv(t)
	t.Setenv("DISPATCH_RETRY_BACKOFF", "soon")

	_, err := loadConfigWithDeps(nil, testDeps())
	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, ErrParsing, cfgErr.Type)
}

func TestLoadConfig_ResolvesSSMOutsideLocal(t *testing.T) {
	setSheetsEnv(t)
	t.Setenv("APP_ENV", "prod")
	t.Setenv("EMAIL_PASSWORD_SSM_PARAM", "/prod/greetbot/smtp/password")
	os.Unsetenv("EMAIL_PASSWORD")

	provider := &testSecretProvider{values: map[string]string{
		"/prod/greetbot/smtp/password": "from-ssm",
	}}

	cfg, err := loadConfigWithDeps(provider, testDeps())
	require.NoError(t, err)
	assert.Equal(t, "from-ssm", cfg.Mail.Password.Unmask())
	assert.Equal(t, 1, provider.callCount)
}

func TestLoadConfig_SkipsSSMLocally(t *testing.T) {
	setSheetsEnv(t)
	t.Setenv("EMAIL_PASSWORD_SSM_PARAM", "/dev/greetbot/smtp/password")

	provider := &testSecretProvider{}
	_, err := loadConfigWithDeps(provider, testDeps())
	require.NoError(t, err)
	assert.Zero(t, provider.callCount)
}

func fakeDeps(env map[string]string) (loaderDeps, map[string]string) {
	set := make(map[string]string)
	return loaderDeps{
		lookupEnv: func(k string) (string, bool) {
			if v, ok := set[k]; ok {
				return v, true
			}
			v, ok := env[k]
			return v, ok
		},
		setEnv: func(k, v string) error {
			set[k] = v
			return nil
		},
		environ: func() []string {
			out := make([]string, 0, len(env))
			for k, v := range env {
				out = append(out, k+"="+v)
			}
			return out
		},
		loadEnv: func() error { return nil },
	}, set
}

func TestResolveSSMParams_ExistingTargetWins(t *testing.T) {
	deps, set := fakeDeps(map[string]string{
		"EMAIL_PASSWORD":           "explicit",
		"EMAIL_PASSWORD_SSM_PARAM": "/p/pass",
		"REDIS_URL_SSM_PARAM":      "/p/redis",
	})
	provider := &testSecretProvider{values: map[string]string{"/p/redis": "redis://cache:6379"}}

	require.NoError(t, resolveSSMParams(provider, deps))
	assert.Equal(t, []string{"/p/redis"}, provider.calledWith)
	assert.Equal(t, "redis://cache:6379", set["REDIS_URL"])
	assert.NotContains(t, set, "EMAIL_PASSWORD")
}

func TestResolveSSMParams_NilProvider(t *testing.T) {
	deps, _ := fakeDeps(map[string]string{"DATABASE_URL_SSM_PARAM": "/p/db"})

	err := resolveSSMParams(nil, deps)
	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, ErrSSMResolution, cfgErr.Type)
	assert.Contains(t, cfgErr.Message, "DATABASE_URL")
}

func TestResolveSSMParams_ProviderErrorAndMissing(t *testing.T) {
	deps, _ := fakeDeps(map[string]string{"DATABASE_URL_SSM_PARAM": "/p/db"})

	err := resolveSSMParams(&testSecretProvider{err: errors.New("throttled")}, deps)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")

	err = resolveSSMParams(&testSecretProvider{values: map[string]string{}}, deps)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "not found for: DATABASE_URL"))
}

func TestConfigError_Format(t *testing.T) {
	err := &ConfigError{Type: ErrValidation, Message: "bad"}
	assert.Equal(t, "[VALIDATION_FAILED] bad", err.Error())

	wrapped := &ConfigError{Type: ErrParsing, Message: "bad", Err: errors.New("cause")}
	assert.Equal(t, "[PARSING_FAILED] bad: cause", wrapped.Error())
	assert.EqualError(t, errors.Unwrap(wrapped), "cause")
}
