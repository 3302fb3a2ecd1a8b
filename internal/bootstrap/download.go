package bootstrap

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/danmuck/bootctl/internal/negotiate"
	"github.com/danmuck/bootctl/internal/registry"
)

var (
	ErrBadRepositoryURL = errors.New("bootstrap: bad repository url")
	ErrFetchFailed      = errors.New("bootstrap: fetch failed")
)

// TransportDownloader fetches repository paths by speaking HTTP/1.1 over a
// channel negotiated through an external transport client. The negotiated
// Conn is a raw byte stream, not a net.Conn, so the request is serialized
// and the response parsed directly rather than going through an
// http.Transport.
type TransportDownloader struct {
	Negotiator *negotiate.Negotiator
}

func NewTransportDownloader(n *negotiate.Negotiator) *TransportDownloader {
	return &TransportDownloader{Negotiator: n}
}

// Fetch retrieves repo's basePath-relative path and returns the body bytes.
func (d *TransportDownloader) Fetch(ctx context.Context, repo registry.SourceRepository, path string) ([]byte, error) {
	host, port, basePath, err := splitRepositoryURL(repo.URL)
	if err != nil {
		return nil, err
	}

	conn, err := d.Negotiator.Open(ctx, repo.Name, host, port)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	target := joinPath(basePath, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://"+host+target, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	req.Close = true

	if err := req.Write(conn); err != nil {
		return nil, fmt.Errorf("%w: write request to %s: %v", ErrFetchFailed, repo.Name, err)
	}

	resp, err := http.ReadResponse(bufio.NewReader(conn), req)
	if err != nil {
		return nil, fmt.Errorf("%w: read response from %s: %v", ErrFetchFailed, repo.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s%s returned %s", ErrFetchFailed, repo.Name, target, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body from %s: %v", ErrFetchFailed, repo.Name, err)
	}
	return body, nil
}

// splitRepositoryURL breaks a base URL into negotiation inputs. Only https
// makes sense here; the whole point of the negotiator is the secure channel.
func splitRepositoryURL(raw string) (host string, port int, basePath string, err error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", 0, "", fmt.Errorf("%w: %q: %v", ErrBadRepositoryURL, raw, err)
	}
	if u.Scheme != "https" {
		return "", 0, "", fmt.Errorf("%w: %q: scheme must be https", ErrBadRepositoryURL, raw)
	}
	if u.Hostname() == "" {
		return "", 0, "", fmt.Errorf("%w: %q: missing host", ErrBadRepositoryURL, raw)
	}
	port = 443
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return "", 0, "", fmt.Errorf("%w: %q: bad port", ErrBadRepositoryURL, raw)
		}
	}
	return u.Hostname(), port, u.Path, nil
}

func joinPath(base string, rel string) string {
	base = strings.TrimSuffix(base, "/")
	rel = strings.TrimPrefix(strings.TrimSpace(rel), "/")
	return base + "/" + rel
}
