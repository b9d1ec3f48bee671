// Package probe acquires remote file metadata without downloading the
// body: size, filename, checksum and resume-capability hints, using a
// retrying HTTP transport the way the teacher's own diagnostic tooling
// does for flaky network conditions.
package probe

import (
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// Info is the RemoteFileInfo produced by a probe and copied into a Record.
type Info struct {
	IsForbidden       bool
	ErrorMessage      string
	FileName          string
	FileSize          int64
	FileChecksum      string
	SupportsMultipart bool
	SupportsResume    bool
	ETag              string
	LastModified      string
}

// Request carries the caller-supplied browser-style context a probe
// needs: custom headers, cookie jar contents, and an optional range.
type Request struct {
	URL       string
	UserAgent string
	Host      string
	Referer   string
	Cookie    string
	Headers   map[string]string
	Range     string // e.g. "bytes=0-0"; empty means no Range header
}

// Prober issues HEAD-style probes using a retrying client.
type Prober struct {
	client *retryablehttp.Client
}

// New builds a Prober whose retryable client follows redirects (including
// protocol-change redirects, via the default CheckRedirect semantics) and
// retries a bounded number of times on transient failures.
func New(maxRetries int, requestTimeout time.Duration) *Prober {
	c := retryablehttp.NewClient()
	c.RetryMax = maxRetries
	c.Logger = nil
	c.HTTPClient.Timeout = requestTimeout
	return &Prober{client: c}
}

// Probe performs the metadata request and populates Info per §4.4:
// fileSize from Content-Length (-1 absent), supportsMultipart from
// Accept-Ranges, supportsResume from multipart-or-ETag-or-Last-Modified,
// fileName from Content-Disposition or URL tail, with special handling
// for a response-content-disposition query parameter.
func (p *Prober) Probe(req Request) (*Info, error) {
	httpReq, err := p.buildRequest(req)
	if err != nil {
		return nil, fmt.Errorf("build probe request: %w", err)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return &Info{IsForbidden: true, FileSize: -1, ErrorMessage: friendlyError(err)}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return &Info{
			IsForbidden:  true,
			FileSize:     -1,
			ErrorMessage: friendlyHTTPError(resp.StatusCode),
		}, nil
	}

	info := &Info{
		FileSize:          -1,
		ETag:              resp.Header.Get("ETag"),
		LastModified:      resp.Header.Get("Last-Modified"),
		SupportsMultipart: resp.Header.Get("Accept-Ranges") == "bytes",
	}
	if resp.ContentLength >= 0 {
		info.FileSize = resp.ContentLength
	}
	info.SupportsResume = info.SupportsMultipart || info.ETag != "" || info.LastModified != ""

	info.FileName = filenameFromResponse(resp, req.URL)

	return info, nil
}

func (p *Prober) buildRequest(r Request) (*retryablehttp.Request, error) {
	httpReq, err := retryablehttp.NewRequest(http.MethodHead, r.URL, nil)
	if err != nil {
		return nil, err
	}

	ua := r.UserAgent
	if ua == "" {
		ua = "Mozilla/5.0 (compatible; aio-download-engine)"
	}
	httpReq.Header.Set("User-Agent", ua)
	httpReq.Header.Set("Accept", "*/*")

	if r.Host != "" {
		httpReq.Host = r.Host
	}
	if r.Referer != "" {
		httpReq.Header.Set("Referer", r.Referer)
	}
	if r.Cookie != "" {
		httpReq.Header.Set("Cookie", r.Cookie)
	}
	if r.Range != "" {
		httpReq.Header.Set("Range", r.Range)
	}
	for k, v := range r.Headers {
		httpReq.Header.Set(k, v)
	}

	applyResponseContentDisposition(httpReq, r.URL)

	return httpReq, nil
}

// applyResponseContentDisposition implements the response-content-disposition
// query-parameter special case: when present, its decoded value becomes a
// Content-Disposition request header, which filename resolution falls back
// to when the server's response carries no Content-Disposition of its own.
func applyResponseContentDisposition(req *retryablehttp.Request, rawURL string) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return
	}
	cd := u.Query().Get("response-content-disposition")
	if cd == "" {
		return
	}
	decoded, err := url.QueryUnescape(cd)
	if err != nil {
		decoded = cd
	}
	req.Header.Set("Content-Disposition", decoded)
}

func filenameFromResponse(resp *http.Response, rawURL string) string {
	cd := resp.Header.Get("Content-Disposition")
	if cd == "" && resp.Request != nil {
		cd = resp.Request.Header.Get("Content-Disposition")
	}
	if cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil && params["filename"] != "" {
			return params["filename"]
		}
	}

	if u, err := url.Parse(rawURL); err == nil {
		base := filepath.Base(u.Path)
		if base != "." && base != "/" && base != "" {
			return base
		}
	}
	return "unknown"
}

// FetchChecksum issues a HEAD and inspects, in priority order,
// X-Checksum-<algo>, X-Checksum, Content-MD5, ETag, returning the first
// non-empty value with surrounding quotes trimmed.
func (p *Prober) FetchChecksum(rawURL, algo string) (string, bool) {
	httpReq, err := retryablehttp.NewRequest(http.MethodHead, rawURL, nil)
	if err != nil {
		return "", false
	}
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", false
	}
	defer resp.Body.Close()

	candidates := []string{
		resp.Header.Get("X-Checksum-" + algo),
		resp.Header.Get("X-Checksum"),
		resp.Header.Get("Content-MD5"),
		resp.Header.Get("ETag"),
	}
	for _, c := range candidates {
		c = strings.Trim(strings.TrimSpace(c), `"`)
		if c != "" {
			return c, true
		}
	}
	return "", false
}

func friendlyError(err error) string {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "no such host"):
		return "Server not found. Check the URL is correct."
	case strings.Contains(msg, "connection refused"):
		return "Server is offline or unreachable."
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded"):
		return "Connection timed out. Try again later."
	case strings.Contains(msg, "certificate"):
		return "SSL certificate error. The website may not be secure."
	case strings.Contains(msg, "network is unreachable"):
		return "No internet connection."
	default:
		return "Connection failed. Check your internet."
	}
}

func friendlyHTTPError(status int) string {
	switch status {
	case 404:
		return "File not found on server (404)"
	case 403:
		return "Access denied by server (403)"
	case 401:
		return "Authentication required (401)"
	case 500, 502, 503:
		return fmt.Sprintf("Server error. Try again later (%d)", status)
	case 429:
		return "Too many requests. Wait and try again."
	default:
		return fmt.Sprintf("Server returned error %d", status)
	}
}
