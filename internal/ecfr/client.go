package ecfr

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client talks to the eCFR API. The zero base is not usable; construct with
// NewClient so all calls share one pooled transport.
type Client struct {
	base string
	hc   *http.Client
}

func NewClient(base string, timeout time.Duration) *Client {
	tr := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		MaxConnsPerHost:       20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &Client{
		base: base,
		hc:   &http.Client{Timeout: timeout, Transport: tr},
	}
}

// GetAgencies fetches the admin agencies feed.
func (c *Client) GetAgencies(ctx context.Context) ([]Agency, error) {
	u := c.base + "/admin/v1/agencies.json"
	var resp struct {
		Agencies []Agency `json:"agencies"`
	}
	if err := c.getJSON(ctx, u, &resp); err != nil {
		return nil, err
	}
	return resp.Agencies, nil
}

// GetTitles fetches the versioner titles feed.
func (c *Client) GetTitles(ctx context.Context) ([]Title, error) {
	u := c.base + "/versioner/v1/titles.json"
	var resp struct {
		Titles []Title `json:"titles"`
	}
	if err := c.getJSON(ctx, u, &resp); err != nil {
		return nil, err
	}
	return resp.Titles, nil
}

// GetTitleVersions fetches the content_versions feed for one title.
// A 404 means the title has no versions and yields an empty slice.
func (c *Client) GetTitleVersions(ctx context.Context, title int) ([]TitleVersion, error) {
	u := fmt.Sprintf("%s/versioner/v1/versions/title-%d.json", c.base, title)
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	res, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if res.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, fmt.Errorf("GET %s: status=%d body=%q", u, res.StatusCode, string(b))
	}
	var resp struct {
		ContentVersions []TitleVersion `json:"content_versions"`
	}
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode versions for title %d: %w", title, err)
	}
	return resp.ContentVersions, nil
}

// GetFullTitleXML fetches the complete XML for a title at a version date.
// A 404 means the snapshot does not exist and yields nil bytes.
func (c *Client) GetFullTitleXML(ctx context.Context, title int, date string) ([]byte, error) {
	u := fmt.Sprintf("%s/versioner/v1/full/%s/title-%d.xml", c.base, url.PathEscape(date), title)
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	req.Header.Set("User-Agent", userAgent)
	res, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if res.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, fmt.Errorf("GET %s: status=%d body=%q", u, res.StatusCode, string(b))
	}
	return io.ReadAll(res.Body)
}

const userAgent = "ecfr-wordstats/1.0"

func (c *Client) getJSON(ctx context.Context, u string, out any) error {
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	res, err := c.do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("GET %s: status=%d body=%q", u, res.StatusCode, string(b))
	}
	return json.NewDecoder(res.Body).Decode(out)
}

// do retries transient upstream failures with backoff. 4xx responses other
// than 429 pass through to the caller untouched.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	const maxAttempts = 3
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		r := req.Clone(req.Context())
		res, err := c.hc.Do(r)
		if err == nil {
			if res.StatusCode == 429 || res.StatusCode == 500 || res.StatusCode == 502 || res.StatusCode == 503 || res.StatusCode == 504 {
				_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 32*1024))
				_ = res.Body.Close()
				lastErr = fmt.Errorf("GET %s: status=%d", r.URL.String(), res.StatusCode)
			} else {
				return res, nil
			}
		} else {
			lastErr = err
		}
		if attempt < maxAttempts-1 {
			delay := time.Duration(250*(1<<attempt)) * time.Millisecond
			t := time.NewTimer(delay)
			select {
			case <-req.Context().Done():
				t.Stop()
				return nil, req.Context().Err()
			case <-t.C:
			}
		}
	}
	return nil, lastErr
}
