package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"substrate-nft-lab/internal/cache"
	"substrate-nft-lab/internal/domain"
	"substrate-nft-lab/internal/enrichment"
	"substrate-nft-lab/internal/observability"
	"substrate-nft-lab/internal/resolver"
	"substrate-nft-lab/internal/scanner"
	"substrate-nft-lab/internal/storage"
	"substrate-nft-lab/internal/storage/clickhouse"
	"substrate-nft-lab/internal/storage/memory"
	"substrate-nft-lab/internal/storage/migrations"
	pgstore "substrate-nft-lab/internal/storage/postgres"
	"substrate-nft-lab/internal/substrate"
)

func main() {
	// Parse flags
	addresses := flag.String("addresses", "", "Comma-separated SS58 addresses to watch")
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string for cache persistence")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	clickhouseDSN := flag.String("clickhouse-dsn", "", "ClickHouse DSN for scan telemetry (empty to disable)")
	scanInterval := flag.Duration("scan-interval", 10*time.Minute, "Interval between rescans")
	once := flag.Bool("once", false, "Run a single scan and exit")
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus metrics HTTP address (empty to disable)")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[nftwatch] ", log.LstdFlags|log.Lshortfile)

	addressList := splitAddresses(*addresses)
	if len(addressList) == 0 {
		logger.Fatal("No addresses specified. Use --addresses")
	}

	// Start metrics server if enabled
	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("ok"))
			})
			logger.Printf("Starting metrics server on %s", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil && err != http.ErrServerClosed {
				logger.Printf("Metrics server error: %v", err)
			}
		}()
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())

	// Handle shutdown signals with graceful timeout
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan error, 1)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
			// Normal shutdown completed
		}
	}()

	err := run(ctx, logger, addressList, *postgresDSN, *useMemory, *clickhouseDSN, *scanInterval, *once)

	done <- err
	cancel()

	if err != nil && err != context.Canceled {
		logger.Fatalf("Error: %v", err)
	}

	logger.Println("Shutdown complete")
}

func splitAddresses(raw string) []string {
	var out []string
	for _, a := range strings.Split(raw, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

func run(ctx context.Context, logger *log.Logger, addresses []string, postgresDSN string, useMemory bool, clickhouseDSN string, scanInterval time.Duration, once bool) error {
	// Require --postgres-dsn unless --use-memory is explicitly set
	if !useMemory && postgresDSN == "" {
		return fmt.Errorf("--postgres-dsn is required (use --use-memory for in-memory storage)")
	}

	// Create the cache's backing store
	var kv storage.KVStore = memory.NewKVStore()
	if !useMemory {
		pool, err := pgstore.NewPool(ctx, postgresDSN)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer pool.Close()

		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			return fmt.Errorf("run postgres migrations: %w", err)
		}

		kv, err = pgstore.NewKVStore(ctx, pool, logger)
		if err != nil {
			return fmt.Errorf("create kv store: %w", err)
		}
	}
	defer kv.Close()

	// Optional scan telemetry
	var scanLog storage.ScanLogStore
	if clickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
		if err != nil {
			return fmt.Errorf("connect to clickhouse: %w", err)
		}
		defer conn.Close()
		scanLog = clickhouse.NewScanLogStore(conn)
	}

	// Cache manager with persisted state
	items := cache.NewManager(kv, cache.Options{Logger: logger})
	defer items.Destroy()
	if err := items.WaitForInitialization(ctx); err != nil {
		// The cache stays writable; start from an empty state.
		logger.Printf("Cache load failed, starting empty: %v", err)
	}
	items.Subscribe(&logSubscriber{logger: logger})

	// Enrichment over the public gateway set
	res := resolver.New(resolver.WithLogger(logger))
	pipeline := enrichment.New(enrichment.Options{
		Resolver: res,
		Cache:    items,
		Logger:   logger,
	})

	// Scanner worker
	scn := scanner.New(scanner.Options{ScanLog: scanLog, Logger: logger})
	worker := scanner.NewWorker(scn, scanner.WorkerOptions{Logger: logger})
	go worker.Run(ctx)

	logger.Printf("Watching %d address(es) across %d chain(s)", len(addresses), len(scn.Chains()))

	ticker := time.NewTicker(scanInterval)
	defer ticker.Stop()

	for {
		if err := scanAndEnrich(ctx, logger, addresses, items, pipeline, scn, worker); err != nil {
			return err
		}
		if once {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// scanAndEnrich runs one scan round: discover, cache, enrich, backfill.
func scanAndEnrich(ctx context.Context, logger *log.Logger, addresses []string, items *cache.Manager, pipeline *enrichment.Pipeline, scn *scanner.Scanner, worker *scanner.Worker) error {
	select {
	case worker.Requests() <- scanner.ScanRequest{Addresses: addresses}:
	case <-ctx.Done():
		return ctx.Err()
	}

	var result scanner.ScanResult
	select {
	case result = <-worker.Results():
	case <-ctx.Done():
		return ctx.Err()
	}

	if result.Failed {
		logger.Println("Scan failed on every chain; keeping cached state")
		return nil
	}
	if len(result.FailedChains) > 0 {
		logger.Printf("Partial scan; chains unavailable: %v", result.FailedChains)
	}

	// Every requested address becomes known, even when empty.
	batch := make(map[string][]domain.ItemOnChainInfo, len(addresses))
	for _, address := range addresses {
		batch[address] = result.ItemsByAddress[address]
	}
	items.SetOnChainItems(batch)

	// Enrich records that have no detail yet
	for _, address := range addresses {
		cached, known := items.Get(address)
		if !known {
			continue
		}
		for i := range cached {
			if needsEnrichment(&cached[i]) {
				pipeline.Enrich(ctx, address, cached[i].ItemOnChainInfo)
			}
		}
	}

	backfillCollectionNames(ctx, logger, addresses, items, pipeline, scn)
	return nil
}

func needsEnrichment(item *domain.ItemInformation) bool {
	return !item.NoData && item.Name == nil && item.MetadataLink == nil
}

// backfillCollectionNames fills collectionName for items whose sibling
// collection record was never enriched, one chain connection per chain
// that still has gaps.
func backfillCollectionNames(ctx context.Context, logger *log.Logger, addresses []string, items *cache.Manager, pipeline *enrichment.Pipeline, scn *scanner.Scanner) {
	type gap struct {
		address string
		item    domain.ItemOnChainInfo
	}
	gapsByChain := make(map[string][]gap)
	for _, address := range addresses {
		cached, known := items.Get(address)
		if !known {
			continue
		}
		for i := range cached {
			it := &cached[i]
			if it.IsCollection || it.NoData || it.CollectionName != nil {
				continue
			}
			gapsByChain[it.ChainName] = append(gapsByChain[it.ChainName], gap{address: address, item: it.ItemOnChainInfo})
		}
	}

	for _, chain := range scn.Chains() {
		gaps := gapsByChain[chain.Name]
		if len(gaps) == 0 {
			continue
		}
		conn, err := substrate.DialFastest(ctx, chain.Endpoints, nil)
		if err != nil {
			logger.Printf("Collection-name backfill skipped for %s: %v", chain.Name, err)
			continue
		}
		for _, g := range gaps {
			pipeline.BackfillCollectionName(ctx, conn, g.address, g.item)
		}
		conn.Close()
	}
}

// logSubscriber logs cache changes as they happen.
type logSubscriber struct {
	logger *log.Logger
}

func (s *logSubscriber) OnItemsChanged(address string, items []domain.ItemInformation) {
	s.logger.Printf("Cache updated: %s now has %d item(s)", address, len(items))
}
