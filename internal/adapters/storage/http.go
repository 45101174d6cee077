package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// HTTPUploader PUTs each artifact under BaseURL and returns the object URL.
// Requests carry no client deadline.
type HTTPUploader struct {
	baseURL string
	token   string
	client  *http.Client
	log     zerolog.Logger
}

func NewHTTPUploader(baseURL, token string) *HTTPUploader {
	return &HTTPUploader{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{},
		log:     log.With().Str("module", "storage").Str("kind", "http").Logger(),
	}
}

func (u *HTTPUploader) UploadArtifact(ctx context.Context, data []byte, contentType string) (string, error) {
	url := u.baseURL + "/" + objectName(contentType)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", contentType)
	if u.token != "" {
		req.Header.Set("Authorization", "Bearer "+u.token)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("storage: put %s: %w", url, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("storage: put %s: unexpected status %d", url, resp.StatusCode)
	}
	u.log.Debug().Str("url", url).Int("size", len(data)).Msg("artifact uploaded")
	return url, nil
}
