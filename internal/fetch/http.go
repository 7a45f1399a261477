package fetch

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"time"
)

// HTTP downloads http:// and https:// locators to a temporary file.
type HTTP struct {
	client *http.Client
}

// NewHTTP creates an HTTP fetcher. A nil client gets a 60 second timeout.
func NewHTTP(client *http.Client) *HTTP {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &HTTP{client: client}
}

func (h *HTTP) Fetch(ctx context.Context, locator string) (*Local, error) {
	u, err := url.Parse(locator)
	if err != nil {
		return nil, &Error{Locator: locator, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &Error{Locator: locator, Err: fmt.Errorf("creating request: %w", err)}
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, &Error{Locator: locator, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &Error{Locator: locator, Err: fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))}
	}

	local, err := tempCopy(resp.Body, extensionFor(u.Path, resp.Header.Get("Content-Type")))
	if err != nil {
		return nil, &Error{Locator: locator, Err: err}
	}
	return local, nil
}

// extensionFor prefers the extension in the URL path and falls back to the
// response content type.
func extensionFor(urlPath, contentType string) string {
	if ext := path.Ext(urlPath); ext != "" {
		return ext
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	if ext, ok := knownExtensions[mediaType]; ok {
		return ext
	}
	if exts, _ := mime.ExtensionsByType(mediaType); len(exts) > 0 {
		return exts[0]
	}
	return ""
}

var knownExtensions = map[string]string{
	"application/pdf": ".pdf",
	"text/plain":      ".txt",
	"text/csv":        ".csv",
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/gif":       ".gif",
	"image/heic":      ".heic",
	"image/heif":      ".heif",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": ".xlsx",
}
