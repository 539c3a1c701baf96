package engine

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/jlaffaye/ftp"

	"github.com/parafetch/parafetch/internal/engine/types"
	"github.com/parafetch/parafetch/internal/httputil"
	"github.com/parafetch/parafetch/internal/utils"
)

// errProbeFailed covers every way the probe can come back unusable: no
// connection, bad status, or a missing/zero content length.
var errProbeFailed = errors.New("probe failed")

// probeResult carries everything the planner needs from the origin.
type probeResult struct {
	// EffectiveURL is the post-redirect URL; all range requests use it.
	EffectiveURL  string
	TotalSize     int64
	SupportsRange bool
	Filename      string
}

// probe resolves redirects and determines total size, range support, and a
// file name, without transferring the body.
func probe(ctx context.Context, rawurl string, cfg *types.Config) (*probeResult, error) {
	parsed, err := url.Parse(rawurl)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errProbeFailed, err)
	}

	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
		return probeHTTP(ctx, rawurl, cfg)
	case "ftp", "ftps":
		return probeFTP(ctx, parsed, cfg)
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", errProbeFailed, parsed.Scheme)
	}
}

func probeHTTP(ctx context.Context, rawurl string, cfg *types.Config) (*probeResult, error) {
	client := &http.Client{
		Timeout: cfg.GetProbeTimeout(),
		Transport: &http.Transport{
			Proxy:           http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{InsecureSkipVerify: cfg.GetInsecure()},
		},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawurl, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errProbeFailed, err)
	}
	req.Header.Set("User-Agent", cfg.GetUserAgent())

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errProbeFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d", errProbeFailed, resp.StatusCode)
	}

	hdr := httputil.NewHeaders(resp.Header)
	size := hdr.ContentLength()
	if size <= 0 {
		return nil, fmt.Errorf("%w: no positive content length", errProbeFailed)
	}

	effective := rawurl
	if resp.Request != nil && resp.Request.URL != nil {
		effective = resp.Request.URL.String()
	}

	result := &probeResult{
		EffectiveURL:  effective,
		TotalSize:     size,
		SupportsRange: hdr.SupportsRanges(),
		Filename:      httputil.ExtractFilename(effective, resp.Header),
	}
	utils.Debug("probe: %s size=%d ranges=%v name=%s",
		effective, result.TotalSize, result.SupportsRange, result.Filename)
	return result, nil
}

func probeFTP(ctx context.Context, parsed *url.URL, cfg *types.Config) (*probeResult, error) {
	host := parsed.Host
	if !strings.Contains(host, ":") {
		host += ":21"
	}

	conn, err := ftp.Dial(host, ftp.DialWithContext(ctx), ftp.DialWithTimeout(cfg.GetProbeTimeout()))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errProbeFailed, err)
	}
	defer conn.Quit()

	user, pass := "anonymous", "anonymous"
	if parsed.User != nil {
		user = parsed.User.Username()
		if p, ok := parsed.User.Password(); ok {
			pass = p
		}
	}
	if err := conn.Login(user, pass); err != nil {
		return nil, fmt.Errorf("%w: %v", errProbeFailed, err)
	}

	size, err := conn.FileSize(parsed.Path)
	if err != nil || size <= 0 {
		return nil, fmt.Errorf("%w: no positive file size", errProbeFailed)
	}

	name := path.Base(parsed.Path)
	if name == "" || name == "." || name == "/" {
		name = "download.bin"
	}

	return &probeResult{
		EffectiveURL:  parsed.String(),
		TotalSize:     size,
		SupportsRange: true, // REST is universal enough to assume
		Filename:      name,
	}, nil
}
