package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/lbrossard/keeptouch/internal/config"
)

// VCardFetcher retrieves a vCard stream from a remote endpoint. The interface
// exists so tests can substitute the network layer.
type VCardFetcher interface {
	Fetch(ctx context.Context, url, user, pass string) (io.ReadCloser, error)
}

// HTTPFetcher is the production VCardFetcher. CardDAV and WebDAV exports both
// reduce to an authenticated GET for our purposes.
type HTTPFetcher struct {
	Client *http.Client
}

// NewHTTPFetcher returns a fetcher with the standard timeout applied.
func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{
		Client: &http.Client{Timeout: config.HTTPTimeout},
	}
}

// Fetch downloads the vCard payload. Only http and https are accepted, query
// parameters never reach the logs (share URLs embed tokens there), and the
// returned reader caps how much of the response body can be consumed.
func (f *HTTPFetcher) Fetch(ctx context.Context, targetURL, user, pass string) (io.ReadCloser, error) {
	u, err := url.Parse(targetURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", config.ErrInvalidURL, err)
	}
	if u.Scheme != config.SchemeHTTP && u.Scheme != config.SchemeHTTPS {
		return nil, fmt.Errorf("%s: %s", config.ErrProtocol, u.Scheme)
	}

	log := slog.With(
		config.LogKeyComponent, config.CompSource,
		config.LogKeyURL, u.Scheme+"://"+u.Host+u.Path,
	)
	log.Debug(config.MsgFetchStart)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set(config.HeaderUserAgent, config.UserAgent)
	if user != "" || pass != "" {
		req.SetBasicAuth(user, pass)
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("network error during fetch: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		log.Warn(config.MsgFetchBadCode, config.LogKeyStatus, resp.StatusCode)
		return nil, fmt.Errorf("server returned unexpected status: %d %s", resp.StatusCode, resp.Status)
	}

	log.Debug(config.MsgFetchBody, config.LogKeySizeBytes, resp.ContentLength)

	return &cappedBody{
		reader: io.LimitReader(resp.Body, config.MaxHTTPResponseSize),
		body:   resp.Body,
	}, nil
}

// cappedBody bounds how much of the response body a caller can read while
// still closing the underlying connection.
type cappedBody struct {
	reader io.Reader
	body   io.Closer
}

func (c *cappedBody) Read(p []byte) (int, error) {
	return c.reader.Read(p)
}

func (c *cappedBody) Close() error {
	return c.body.Close()
}
