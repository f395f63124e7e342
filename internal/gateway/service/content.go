package service

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/aussiebroadwan/hwidgate/internal/gateway/domain"
	"github.com/aussiebroadwan/hwidgate/internal/gateway/metrics"
	"github.com/aussiebroadwan/hwidgate/pkg/slogx"
)

var (
	// ErrFetchFailed means neither upstream nor the local fallback produced content.
	ErrFetchFailed = errors.New("service: content fetch failed")
	// ErrUpstreamNotConfigured means the upstream identity or token is missing.
	ErrUpstreamNotConfigured = errors.New("service: upstream not configured")
)

const (
	DefaultUpstreamBaseURL = "https://api.github.com"
	DefaultUpstreamPath    = "main.lua"
	DefaultUpstreamTimeout = 10 * time.Second
	DefaultMaxContentBytes = 8 << 20

	userAgent = "hwidgate-loader"
	rawAccept = "application/vnd.github.v3.raw"
)

// Upstream identifies the protected file in a GitHub style contents API.
type Upstream struct {
	BaseURL  string
	Owner    string
	Repo     string
	Path     string
	Token    string
	Timeout  time.Duration
	MaxBytes int64
}

func (u Upstream) configured() bool {
	return u.Owner != "" && u.Repo != "" && u.Token != ""
}

// contentsURL builds {base}/repos/{owner}/{repo}/contents/{path}, escaping
// every path segment.
func (u Upstream) contentsURL() string {
	segments := []string{"repos", url.PathEscape(u.Owner), url.PathEscape(u.Repo), "contents"}
	for _, seg := range strings.Split(strings.Trim(u.Path, "/"), "/") {
		if seg != "" {
			segments = append(segments, url.PathEscape(seg))
		}
	}
	return strings.TrimSuffix(u.BaseURL, "/") + "/" + strings.Join(segments, "/")
}

// ContentService fetches the protected artifact from upstream and falls back
// to a local copy when that fails. Nothing is cached between calls.
type ContentService struct {
	Upstream     Upstream
	FallbackPath string
	HTTPClient   *http.Client
	Metrics      *metrics.Metrics
}

// NewContentService fills in defaults and builds an HTTP client that always
// verifies upstream certificates.
func NewContentService(up Upstream, fallbackPath string, m *metrics.Metrics) *ContentService {
	if up.BaseURL == "" {
		up.BaseURL = DefaultUpstreamBaseURL
	}
	if up.Path == "" {
		up.Path = DefaultUpstreamPath
	}
	if up.Timeout <= 0 {
		up.Timeout = DefaultUpstreamTimeout
	}
	if up.MaxBytes <= 0 {
		up.MaxBytes = DefaultMaxContentBytes
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}

	return &ContentService{
		Upstream:     up,
		FallbackPath: fallbackPath,
		HTTPClient: &http.Client{
			Timeout:   up.Timeout,
			Transport: transport,
		},
		Metrics: m,
	}
}

// Fetch returns the artifact from upstream, or the fallback copy if upstream
// fails for any reason. Upstream is tried exactly once.
func (s *ContentService) Fetch(ctx context.Context) (domain.Artifact, error) {
	log := slogx.FromContext(ctx)

	if !s.Upstream.configured() {
		s.Metrics.ObserveFetch("failed")
		return domain.Artifact{}, ErrUpstreamNotConfigured
	}

	body, upErr := s.fetchUpstream(ctx)
	if upErr == nil {
		s.Metrics.ObserveFetch(string(domain.SourceUpstream))
		return domain.Artifact{Body: body, Source: domain.SourceUpstream}, nil
	}
	log.Warn("upstream fetch failed", "url", s.Upstream.contentsURL(), "error", upErr)

	body, fbErr := s.loadFallback()
	if fbErr != nil {
		s.Metrics.ObserveFetch("failed")
		log.Error("fallback copy unavailable", "path", s.FallbackPath, "error", fbErr)
		return domain.Artifact{}, fmt.Errorf("%w: upstream: %v; fallback: %v", ErrFetchFailed, upErr, fbErr)
	}

	s.Metrics.ObserveFetch(string(domain.SourceFallback))
	log.Warn("serving local fallback copy", "path", s.FallbackPath, "bytes", len(body))
	return domain.Artifact{Body: body, Source: domain.SourceFallback}, nil
}

func (s *ContentService) fetchUpstream(ctx context.Context) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Upstream.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.Upstream.contentsURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Authorization", "token "+s.Upstream.Token)
	req.Header.Set("Accept", rawAccept)

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("unexpected upstream status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.Upstream.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(body)) > s.Upstream.MaxBytes {
		return nil, fmt.Errorf("upstream content exceeds %d bytes", s.Upstream.MaxBytes)
	}
	return body, nil
}

func (s *ContentService) loadFallback() ([]byte, error) {
	if s.FallbackPath == "" {
		return nil, errors.New("no fallback configured")
	}
	return os.ReadFile(s.FallbackPath)
}
