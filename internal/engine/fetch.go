package engine

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/parafetch/parafetch/internal/engine/types"
)

// fetcher opens the byte stream for one segment request against the origin.
type fetcher interface {
	// open returns a reader for [start, end]. When ranged is false the
	// origin ignores ranges and the stream is the whole body from offset
	// zero; callers stop reading once their segment is satisfied.
	open(ctx context.Context, start, end int64, ranged bool) (io.ReadCloser, error)
}

// newFetcher picks the transport for a URL scheme.
func newFetcher(rawurl string, cfg *types.Config) (fetcher, error) {
	parsed, err := url.Parse(rawurl)
	if err != nil {
		return nil, fmt.Errorf("parsing URL: %w", err)
	}

	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
		return &httpFetcher{
			url:       rawurl,
			userAgent: cfg.GetUserAgent(),
			client:    newTransferClient(cfg),
		}, nil
	case "ftp", "ftps":
		return &ftpFetcher{
			url:     parsed,
			timeout: cfg.GetProbeTimeout(),
		}, nil
	default:
		return nil, fmt.Errorf("unsupported scheme %q", parsed.Scheme)
	}
}

// newTransferClient builds the http.Client shared by a download's segment
// transfers. HTTP/1.1 is forced so each segment gets its own TCP
// connection instead of multiplexing onto one HTTP/2 stream.
func newTransferClient(cfg *types.Config) *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   types.DialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConnsPerHost:   types.MaxSegments + 2,
		IdleConnTimeout:       types.IdleConnTimeout,
		ResponseHeaderTimeout: types.ResponseHeaderTimeout,
		TLSHandshakeTimeout:   types.DialTimeout,
		DisableCompression:    true,
		ForceAttemptHTTP2:     false,
		TLSNextProto:          make(map[string]func(authority string, c *tls.Conn) http.RoundTripper),
		TLSClientConfig:       &tls.Config{InsecureSkipVerify: cfg.GetInsecure()},
	}
	return &http.Client{Transport: transport}
}

type httpFetcher struct {
	url       string
	userAgent string
	client    *http.Client
}

func (f *httpFetcher) open(ctx context.Context, start, end int64, ranged bool) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, &transferError{kind: errConnect, err: err}
	}
	req.Header.Set("User-Agent", f.userAgent)
	if ranged {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end))
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &transferError{kind: errConnect, err: err}
	}

	switch {
	case ranged && resp.StatusCode == http.StatusPartialContent:
	case !ranged && resp.StatusCode == http.StatusOK:
	case ranged && resp.StatusCode == http.StatusOK:
		// A full body in answer to a ranged request would corrupt every
		// segment but the first; refuse it.
		resp.Body.Close()
		return nil, &transferError{kind: errTransport,
			err: fmt.Errorf("origin ignored range request (status 200)")}
	default:
		resp.Body.Close()
		return nil, &transferError{kind: errTransport,
			err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	return resp.Body, nil
}

type ftpFetcher struct {
	url     *url.URL
	timeout time.Duration
}

// ftpBody ties a data stream to its control connection so closing the
// segment tears both down.
type ftpBody struct {
	io.Reader
	resp *ftp.Response
	conn *ftp.ServerConn
}

func (b *ftpBody) Close() error {
	err := b.resp.Close()
	b.conn.Quit()
	return err
}

func (f *ftpFetcher) open(ctx context.Context, start, end int64, ranged bool) (io.ReadCloser, error) {
	host := f.url.Host
	if !strings.Contains(host, ":") {
		host += ":21"
	}

	conn, err := ftp.Dial(host, ftp.DialWithContext(ctx), ftp.DialWithTimeout(f.timeout))
	if err != nil {
		return nil, &transferError{kind: errConnect, err: err}
	}

	user, pass := "anonymous", "anonymous"
	if f.url.User != nil {
		user = f.url.User.Username()
		if p, ok := f.url.User.Password(); ok {
			pass = p
		}
	}
	if err := conn.Login(user, pass); err != nil {
		conn.Quit()
		return nil, &transferError{kind: errConnect, err: err}
	}

	resp, err := conn.RetrFrom(f.url.Path, uint64(start))
	if err != nil {
		conn.Quit()
		return nil, &transferError{kind: errTransport, err: err}
	}

	var r io.Reader = resp
	if ranged {
		// FTP REST streams run to end-of-file; cap at the segment end.
		r = io.LimitReader(resp, end-start+1)
	}
	return &ftpBody{Reader: r, resp: resp, conn: conn}, nil
}
