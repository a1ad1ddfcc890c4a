package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mattcarabine/wedding-website/internal/common"
	"github.com/mattcarabine/wedding-website/pkg/config"
)

// Backend hands a finished file to the external photo storage service and
// returns its opaque media identifier.
type Backend interface {
	Ingest(ctx context.Context, filename, contentType string, data []byte) (string, error)
}

const tokenCacheKey = "photoapi:token"

// PhotoAPIBackend talks to the third-party photo storage API. Transient
// failures (network, 5xx, 429) are retried by the underlying client; the
// bearer token is cached in Redis between requests.
type PhotoAPIBackend struct {
	baseURL string
	apiKey  string
	client  *retryablehttp.Client
	cache   *common.Cache
	ttl     time.Duration
}

// NewPhotoAPIBackend creates a backend client from config. cache may be
// nil, in which case a token is requested per ingest.
func NewPhotoAPIBackend(cfg *config.PhotoAPIConfig, cache *common.Cache) *PhotoAPIBackend {
	client := retryablehttp.NewClient()
	client.RetryMax = cfg.MaxRetries
	client.HTTPClient.Timeout = cfg.RequestTimeout
	client.Logger = retryableLogger{}

	return &PhotoAPIBackend{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  client,
		cache:   cache,
		ttl:     cfg.TokenCacheTTL,
	}
}

// Ingest uploads the file bytes to the photo API and returns the media id
func (b *PhotoAPIBackend) Ingest(ctx context.Context, filename, contentType string, data []byte) (string, error) {
	token, err := b.token(ctx)
	if err != nil {
		return "", fmt.Errorf("acquire photo API token: %w", err)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := writer.WriteField("filename", filename); err != nil {
		return "", err
	}
	part, err := writer.CreatePart(map[string][]string{
		"Content-Disposition": {fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename)},
		"Content-Type":        {contentType},
	})
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/v1/media", body.Bytes())
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := b.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("photo API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("photo API rejected upload with status %d: %s", resp.StatusCode, string(detail))
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("malformed photo API response: %w", err)
	}
	if out.ID == "" {
		return "", fmt.Errorf("photo API response missing media id")
	}

	return out.ID, nil
}

// token returns a cached bearer token, requesting a fresh one on miss
func (b *PhotoAPIBackend) token(ctx context.Context) (string, error) {
	if b.cache != nil {
		if token, err := b.cache.GetString(ctx, tokenCacheKey); err == nil && token != "" {
			return token, nil
		}
	}

	payload, err := json.Marshal(map[string]string{"apiKey": b.apiKey})
	if err != nil {
		return "", err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/v1/auth/token", payload)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token request failed with status %d", resp.StatusCode)
	}

	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("malformed token response: %w", err)
	}
	if out.Token == "" {
		return "", fmt.Errorf("token response missing token")
	}

	if b.cache != nil {
		if err := b.cache.SetString(ctx, tokenCacheKey, out.Token, b.ttl); err != nil {
			log.Warn().Err(err).Msg("failed to cache photo API token")
		}
	}

	return out.Token, nil
}

// retryableLogger adapts zerolog to retryablehttp's leveled logger
type retryableLogger struct{}

func (retryableLogger) logEvent(level zerolog.Level, msg string, keysAndValues []interface{}) {
	event := log.WithLevel(level)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		event = event.Interface(key, keysAndValues[i+1])
	}
	event.Msg(msg)
}

func (l retryableLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logEvent(zerolog.ErrorLevel, msg, keysAndValues)
}

func (l retryableLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logEvent(zerolog.InfoLevel, msg, keysAndValues)
}

func (l retryableLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logEvent(zerolog.DebugLevel, msg, keysAndValues)
}

func (l retryableLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logEvent(zerolog.WarnLevel, msg, keysAndValues)
}
