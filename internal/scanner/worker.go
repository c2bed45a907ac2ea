package scanner

import (
	"context"
	"log"
	"time"

	"substrate-nft-lab/internal/domain"
	"substrate-nft-lab/internal/observability"
)

// ScanRequest asks the worker for one addresses-wide scan.
type ScanRequest struct {
	Addresses []string
}

// ScanResult is the worker's reply. Failed means no chain produced a
// result after every retry; a result with only some chains missing is
// reported through FailedChains instead.
type ScanResult struct {
	ItemsByAddress map[string][]domain.ItemOnChainInfo
	FailedChains   []string
	Failed         bool
}

// Worker defaults.
const (
	DefaultMaxAttempts = 5
	DefaultRetryUnit   = 2 * time.Second
)

// WorkerOptions configures Worker. Zero values select defaults.
type WorkerOptions struct {
	MaxAttempts int
	RetryUnit   time.Duration
	Logger      *log.Logger
}

// Worker runs scans in its own goroutine, communicating only through
// request and result channels. Failures never propagate as errors;
// they surface as a Failed result.
type Worker struct {
	scanner     *Scanner
	maxAttempts int
	retryUnit   time.Duration
	logger      *log.Logger

	requests chan ScanRequest
	results  chan ScanResult
}

// NewWorker creates a Worker around scanner. Run must be called before
// requests are served.
func NewWorker(scanner *Scanner, opts WorkerOptions) *Worker {
	w := &Worker{
		scanner:     scanner,
		maxAttempts: opts.MaxAttempts,
		retryUnit:   opts.RetryUnit,
		logger:      opts.Logger,
		requests:    make(chan ScanRequest),
		results:     make(chan ScanResult),
	}
	if w.maxAttempts <= 0 {
		w.maxAttempts = DefaultMaxAttempts
	}
	if w.retryUnit <= 0 {
		w.retryUnit = DefaultRetryUnit
	}
	if w.logger == nil {
		w.logger = log.Default()
	}
	return w
}

// Requests is the channel scan requests are submitted on.
func (w *Worker) Requests() chan<- ScanRequest {
	return w.requests
}

// Results is the channel scan results are delivered on, one per request.
func (w *Worker) Results() <-chan ScanResult {
	return w.results
}

// Run serves requests until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-w.requests:
			result := w.scan(ctx, req)
			select {
			case w.results <- result:
			case <-ctx.Done():
				return
			}
		}
	}
}

// scan retries only the chains that failed on previous attempts,
// accumulating partial results, with linear back-off between attempts.
func (w *Worker) scan(ctx context.Context, req ScanRequest) ScanResult {
	itemsByAddress := make(map[string][]domain.ItemOnChainInfo)
	remaining := w.scanner.Chains()
	totalChains := len(remaining)

	for attempt := 1; attempt <= w.maxAttempts && len(remaining) > 0; attempt++ {
		if attempt > 1 {
			observability.RecordScanRetry()
			delay := time.Duration(attempt) * w.retryUnit
			w.logger.Printf("[worker] retrying %d chain(s), attempt %d/%d in %v",
				len(remaining), attempt, w.maxAttempts, delay)
			select {
			case <-ctx.Done():
				return ScanResult{Failed: true}
			case <-time.After(delay):
			}
		}

		found, failed, err := w.scanner.ScanChains(ctx, remaining, req.Addresses, attempt)
		if err != nil {
			// Address decoding failed; no attempt can succeed.
			w.logger.Printf("[worker] scan aborted: %v", err)
			return ScanResult{Failed: true}
		}

		for address, records := range found {
			itemsByAddress[address] = append(itemsByAddress[address], records...)
		}
		remaining = failed
	}

	result := ScanResult{ItemsByAddress: itemsByAddress}
	for _, chain := range remaining {
		result.FailedChains = append(result.FailedChains, chain.Name)
	}
	if totalChains > 0 && len(remaining) == totalChains {
		// Every chain failed every attempt.
		result.Failed = true
		result.ItemsByAddress = nil
	}
	return result
}
