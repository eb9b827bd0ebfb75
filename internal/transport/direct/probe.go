package direct

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/vfaronov/httpheader"

	"github.com/omniget/omniget/internal/logx"
	"github.com/omniget/omniget/internal/types"
)

// ProbeResult contains server metadata gathered before a download.
type ProbeResult struct {
	FileSize      int64
	SupportsRange bool
	Filename      string
	ContentType   string
}

// Probe sends GET with Range: bytes=0-0 to learn size, range support and the
// server's preferred filename.
func Probe(ctx context.Context, client *http.Client, rawurl string, headers map[string]string) (*ProbeResult, error) {
	logx.Debug("probing server: %s", logx.ScrubURL(rawurl))

	probeCtx, cancel := context.WithTimeout(ctx, types.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, rawurl, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create probe request: %w", err)
	}
	for key, val := range headers {
		req.Header.Set(key, val)
	}
	req.Header.Set("Range", "bytes=0-0")
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", types.DefaultUserAgent)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("probe request failed: %w", err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	result := &ProbeResult{}

	switch resp.StatusCode {
	case http.StatusPartialContent:
		result.SupportsRange = true
		// Content-Range: bytes 0-0/TOTAL
		if cr := resp.Header.Get("Content-Range"); cr != "" {
			if idx := strings.LastIndex(cr, "/"); idx != -1 {
				sizeStr := cr[idx+1:]
				if sizeStr != "*" {
					result.FileSize, _ = strconv.ParseInt(sizeStr, 10, 64)
				}
			}
		}

	case http.StatusOK:
		result.SupportsRange = false
		if cl := resp.Header.Get("Content-Length"); cl != "" {
			result.FileSize, _ = strconv.ParseInt(cl, 10, 64)
		}

	default:
		return nil, fmt.Errorf("unexpected probe status: %d", resp.StatusCode)
	}

	result.Filename = extractFilename(rawurl, resp)
	result.ContentType = resp.Header.Get("Content-Type")
	return result, nil
}

// extractFilename prefers Content-Disposition, then the URL path.
func extractFilename(rawurl string, resp *http.Response) string {
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		// httpheader decodes filename* (RFC 8187) and prefers it over the
		// plain filename parameter.
		if _, filename, _ := httpheader.ContentDisposition(resp.Header); filename != "" {
			return filepath.Base(filename)
		}
	}

	if parsed, err := url.Parse(rawurl); err == nil {
		name := filepath.Base(parsed.Path)
		if name != "" && name != "." && name != "/" {
			return name
		}
	}
	return "download.bin"
}
