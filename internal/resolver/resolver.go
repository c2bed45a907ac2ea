// Package resolver fetches off-chain content by direct URL or IPFS
// path, failing over across a ranked list of public gateways.
package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"substrate-nft-lab/internal/domain"
	"substrate-nft-lab/internal/observability"
)

// Default configuration values.
const (
	DefaultTimeout   = 30 * time.Second
	DefaultRetryBase = 300 * time.Millisecond

	// minPointerLength is the shortest string worth treating as a
	// content pointer at all.
	minPointerLength = 7

	// backoffSteps is the number of discrete randomized backoff steps:
	// each retry sleeps retryBase * [1..backoffSteps].
	backoffSteps = 10
)

// DefaultGateways is the ranked gateway list. Order matters: it is the
// failover priority order, and its length bounds retry attempts.
var DefaultGateways = []string{
	"https://ipfs.io/ipfs/",
	"https://cloudflare-ipfs.com/ipfs/",
	"https://gateway.pinata.cloud/ipfs/",
	"https://dweb.link/ipfs/",
	"https://nftstorage.link/ipfs/",
}

// retryableStatuses are HTTP statuses treated as transient.
var retryableStatuses = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// Resolver resolves content pointers over HTTP with retry and gateway
// failover.
type Resolver struct {
	gateways  []string
	client    *http.Client
	retryBase time.Duration
	logger    *log.Logger
}

// Option configures Resolver.
type Option func(*Resolver)

// WithGateways sets the ranked gateway list.
func WithGateways(gateways []string) Option {
	return func(r *Resolver) {
		r.gateways = gateways
	}
}

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(client *http.Client) Option {
	return func(r *Resolver) {
		r.client = client
	}
}

// WithRetryBase sets the backoff base unit.
func WithRetryBase(d time.Duration) Option {
	return func(r *Resolver) {
		r.retryBase = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// New creates a Resolver.
func New(opts ...Option) *Resolver {
	r := &Resolver{
		gateways:  DefaultGateways,
		client:    &http.Client{Timeout: DefaultTimeout},
		retryBase: DefaultRetryBase,
		logger:    log.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// MaxAttempts is the per-URL retry ceiling, equal to the gateway count.
func (r *Resolver) MaxAttempts() int {
	return len(r.gateways)
}

// Normalize classifies a pointer. It returns the canonical path, whether
// the pointer is directly fetchable (as opposed to IPFS-routed), and
// whether a canonical path exists at all.
func (r *Resolver) Normalize(uri string) (path string, remote bool, ok bool) {
	if len(uri) < minPointerLength {
		return "", false, false
	}
	if hasRemoteScheme(uri) {
		return uri, true, true
	}

	// Treat as an IPFS path: strip routing prefixes and leading slashes.
	path = uri
	path = strings.TrimPrefix(path, "ipfs://ipfs/")
	path = strings.TrimPrefix(path, "ipfs://")
	path = strings.TrimPrefix(path, "ipfs/")
	path = strings.TrimLeft(path, "/")

	// Some metadata documents embed an already-resolved gateway URL
	// under an IPFS-looking field.
	if hasRemoteScheme(path) {
		return path, true, true
	}
	if path == "" {
		return "", false, false
	}
	return path, false, true
}

func hasRemoteScheme(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "data:")
}

// FetchWithRetry issues a GET against url, retrying transient failures
// with randomized backoff up to MaxAttempts total attempts. The caller
// owns the response body on success.
func (r *Resolver) FetchWithRetry(ctx context.Context, url string) (*http.Response, error) {
	maxAttempts := r.MaxAttempts()
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := time.Duration(1+rand.Intn(backoffSteps)) * r.retryBase
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}

		resp, err := r.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		if retryableStatuses[resp.StatusCode] {
			resp.Body.Close()
			lastErr = fmt.Errorf("retryable status %d", resp.StatusCode)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
		}

		return resp, nil
	}

	return nil, fmt.Errorf("max attempts (%d) exceeded for %s: %w", maxAttempts, url, lastErr)
}

// ResourceInfo is the result of probing a media sub-resource.
type ResourceInfo struct {
	URL         string
	ContentType string
}

// FetchJSON resolves pointer to a metadata document. A nil result means
// no metadata is available; resolution failures never propagate as
// errors past this boundary.
func (r *Resolver) FetchJSON(ctx context.Context, pointer string) *domain.MetadataDocument {
	path, remote, ok := r.Normalize(pointer)
	if !ok {
		return nil
	}

	if remote {
		started := time.Now()
		doc, err := r.fetchJSONOnce(ctx, path)
		observability.RecordGatewayFetch("direct", time.Since(started).Seconds(), err)
		if err != nil {
			r.logger.Printf("[resolver] direct fetch failed for %s: %v", pointer, err)
			return nil
		}
		return doc
	}

	for _, gateway := range r.gateways {
		started := time.Now()
		doc, err := r.fetchJSONOnce(ctx, gateway+path)
		observability.RecordGatewayFetch(gateway, time.Since(started).Seconds(), err)
		if err != nil {
			r.logger.Printf("[resolver] gateway %s failed for %s: %v", gateway, path, err)
			continue
		}
		return doc
	}

	r.logger.Printf("[resolver] all gateways exhausted for %s", path)
	return nil
}

// FetchResource resolves pointer to its final URL and content type
// without consuming the body. A nil result means the resource is
// unreachable.
func (r *Resolver) FetchResource(ctx context.Context, pointer string) *ResourceInfo {
	path, remote, ok := r.Normalize(pointer)
	if !ok {
		return nil
	}

	if remote {
		started := time.Now()
		info, err := r.probeOnce(ctx, path)
		observability.RecordGatewayFetch("direct", time.Since(started).Seconds(), err)
		if err != nil {
			r.logger.Printf("[resolver] direct probe failed for %s: %v", pointer, err)
			return nil
		}
		return info
	}

	for _, gateway := range r.gateways {
		started := time.Now()
		info, err := r.probeOnce(ctx, gateway+path)
		observability.RecordGatewayFetch(gateway, time.Since(started).Seconds(), err)
		if err != nil {
			r.logger.Printf("[resolver] gateway %s failed for %s: %v", gateway, path, err)
			continue
		}
		return info
	}

	r.logger.Printf("[resolver] all gateways exhausted for %s", path)
	return nil
}

func (r *Resolver) fetchJSONOnce(ctx context.Context, url string) (*domain.MetadataDocument, error) {
	resp, err := r.FetchWithRetry(ctx, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	var doc domain.MetadataDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("parse metadata json: %w", err)
	}

	doc.MetadataLink = finalURL(resp, url)
	return &doc, nil
}

func (r *Resolver) probeOnce(ctx context.Context, url string) (*ResourceInfo, error) {
	resp, err := r.FetchWithRetry(ctx, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return &ResourceInfo{
		URL:         finalURL(resp, url),
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}

// finalURL reports where the response actually came from, after redirects.
func finalURL(resp *http.Response, requested string) string {
	if resp.Request != nil && resp.Request.URL != nil {
		return resp.Request.URL.String()
	}
	return requested
}
