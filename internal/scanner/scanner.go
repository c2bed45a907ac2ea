// Package scanner discovers on-chain items for a set of addresses
// across several Substrate asset chains.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"substrate-nft-lab/internal/domain"
	"substrate-nft-lab/internal/observability"
	"substrate-nft-lab/internal/storage"
	"substrate-nft-lab/internal/substrate"
)

// ChainConn is the live connection a scan runs against.
type ChainConn interface {
	substrate.Querier
	Endpoint() string
	Close() error
}

// Dialer opens a connection to the fastest of the candidate endpoints.
type Dialer func(ctx context.Context, endpoints []string) (ChainConn, error)

func defaultDialer(ctx context.Context, endpoints []string) (ChainConn, error) {
	return substrate.DialFastest(ctx, endpoints, nil)
}

// ErrDuplicateAddress means two input addresses decode to the same
// public key, which would make ownership bucketing ambiguous.
var ErrDuplicateAddress = errors.New("duplicate public key among input addresses")

// Options configures Scanner. Zero values select defaults.
type Options struct {
	Chains []Chain
	Dial   Dialer
	// ScanLog receives one record per chain per attempt. Optional.
	ScanLog storage.ScanLogStore
	Logger  *log.Logger
}

// Scanner queries every configured chain for the items and collections
// owned by a set of addresses.
type Scanner struct {
	chains  []Chain
	dial    Dialer
	scanLog storage.ScanLogStore
	logger  *log.Logger
}

// New creates a Scanner.
func New(opts Options) *Scanner {
	s := &Scanner{
		chains:  opts.Chains,
		dial:    opts.Dial,
		scanLog: opts.ScanLog,
		logger:  opts.Logger,
	}
	if s.chains == nil {
		s.chains = DefaultChains
	}
	if s.dial == nil {
		s.dial = defaultDialer
	}
	if s.logger == nil {
		s.logger = log.Default()
	}
	return s
}

// Chains returns the configured chain set.
func (s *Scanner) Chains() []Chain {
	return s.chains
}

type pubKey [32]byte

// ownerSet maps decoded public keys back to the input addresses they
// came from.
type ownerSet map[pubKey]string

func (s *Scanner) decodeOwners(addresses []string) (ownerSet, error) {
	owners := make(ownerSet, len(addresses))
	for _, address := range addresses {
		raw, _, err := substrate.DecodeAddress(address)
		if err != nil {
			return nil, fmt.Errorf("decode address %s: %w", address, err)
		}
		if !substrate.IsOnCurve(raw) {
			// Soft signal only: sr25519 keys fail the ed25519 point
			// check while still being valid account keys.
			s.logger.Printf("[scanner] address %s: key is not an ed25519 point, assuming sr25519", address)
		}
		var key pubKey
		copy(key[:], raw)
		if existing, ok := owners[key]; ok {
			return nil, fmt.Errorf("%w: %s and %s", ErrDuplicateAddress, existing, address)
		}
		owners[key] = address
	}
	return owners, nil
}

// Scan queries all configured chains for addresses and buckets the
// results by owning input address. Chains that fail are reported in
// failedChains; their absence from the result is partial, not fatal.
func (s *Scanner) Scan(ctx context.Context, addresses []string) (map[string][]domain.ItemOnChainInfo, []Chain, error) {
	return s.ScanChains(ctx, s.chains, addresses, 1)
}

// ScanChains is Scan restricted to a chain subset, used by the worker
// to retry only the chains that failed on a previous attempt.
func (s *Scanner) ScanChains(ctx context.Context, chains []Chain, addresses []string, attempt int) (map[string][]domain.ItemOnChainInfo, []Chain, error) {
	owners, err := s.decodeOwners(addresses)
	if err != nil {
		return nil, nil, err
	}

	type chainOutcome struct {
		chain   Chain
		records []domain.ItemOnChainInfo
		err     error
	}

	outcomes := make(chan chainOutcome, len(chains))
	var wg sync.WaitGroup
	for _, chain := range chains {
		wg.Add(1)
		go func(chain Chain) {
			defer wg.Done()
			started := time.Now()
			records, err := s.scanChain(ctx, chain, owners)
			observability.RecordScan(chain.Name, time.Since(started).Seconds(), len(records), err)
			s.recordScan(ctx, chain, addresses, records, started, attempt, err)
			outcomes <- chainOutcome{chain: chain, records: records, err: err}
		}(chain)
	}
	wg.Wait()
	close(outcomes)

	itemsByAddress := make(map[string][]domain.ItemOnChainInfo)
	var failed []Chain
	for outcome := range outcomes {
		if outcome.err != nil {
			s.logger.Printf("[scanner] chain %s failed: %v", outcome.chain.Name, outcome.err)
			failed = append(failed, outcome.chain)
			continue
		}
		bucketRecords(itemsByAddress, owners, outcome.records)
	}
	return itemsByAddress, failed, nil
}

// bucketRecords assigns each record to the input address whose public
// key matches the record's owner or, failing that, its creator.
func bucketRecords(itemsByAddress map[string][]domain.ItemOnChainInfo, owners ownerSet, records []domain.ItemOnChainInfo) {
	for _, record := range records {
		address, ok := matchOwner(owners, record.Owner)
		if !ok {
			address, ok = matchOwner(owners, record.Creator)
		}
		if !ok {
			continue
		}
		itemsByAddress[address] = append(itemsByAddress[address], record)
	}
}

func matchOwner(owners ownerSet, encoded string) (string, bool) {
	if encoded == "" {
		return "", false
	}
	raw, _, err := substrate.DecodeAddress(encoded)
	if err != nil {
		return "", false
	}
	var key pubKey
	copy(key[:], raw)
	address, ok := owners[key]
	return address, ok
}

// scanChain queries one chain for every owner. The connection is
// closed before returning regardless of outcome.
func (s *Scanner) scanChain(ctx context.Context, chain Chain, owners ownerSet) ([]domain.ItemOnChainInfo, error) {
	conn, err := s.dial(ctx, chain.Endpoints)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", chain.Name, err)
	}
	defer conn.Close()

	var records []domain.ItemOnChainInfo
	for key := range owners {
		native, err := substrate.EncodeAddress(key[:], chain.Prefix)
		if err != nil {
			return nil, fmt.Errorf("encode address for %s: %w", chain.Name, err)
		}
		found, err := s.scanAddress(ctx, conn, chain, native)
		if err != nil {
			return nil, err
		}
		records = append(records, found...)
	}
	return records, nil
}

// scanAddress runs the four owned-asset storage queries in parallel,
// then fetches per-record metadata pointers, prices, and counts.
func (s *Scanner) scanAddress(ctx context.Context, conn ChainConn, chain Chain, address string) ([]domain.ItemOnChainInfo, error) {
	var (
		nftItems, uniqueItems             []substrate.ItemEntry
		nftCollections, uniqueCollections []substrate.CollectionEntry
		errs                              [4]error
	)

	var wg sync.WaitGroup
	wg.Add(4)
	go func() {
		defer wg.Done()
		nftItems, errs[0] = conn.ItemsOwned(ctx, substrate.PalletNfts, address)
	}()
	go func() {
		defer wg.Done()
		uniqueItems, errs[1] = conn.ItemsOwned(ctx, substrate.PalletUniques, address)
	}()
	go func() {
		defer wg.Done()
		nftCollections, errs[2] = conn.CollectionsOwned(ctx, substrate.PalletNfts, address)
	}()
	go func() {
		defer wg.Done()
		uniqueCollections, errs[3] = conn.CollectionsOwned(ctx, substrate.PalletUniques, address)
	}()
	wg.Wait()

	if err := errors.Join(errs[:]...); err != nil {
		return nil, fmt.Errorf("query storage for %s on %s: %w", address, chain.Name, err)
	}

	var records []domain.ItemOnChainInfo
	for pallet, entries := range map[substrate.Pallet][]substrate.ItemEntry{
		substrate.PalletNfts:    nftItems,
		substrate.PalletUniques: uniqueItems,
	} {
		for _, entry := range entries {
			record, err := s.describeItem(ctx, conn, chain, pallet, entry)
			if err != nil {
				return nil, err
			}
			records = append(records, record)
		}
	}
	for pallet, entries := range map[substrate.Pallet][]substrate.CollectionEntry{
		substrate.PalletNfts:    nftCollections,
		substrate.PalletUniques: uniqueCollections,
	} {
		for _, entry := range entries {
			record, err := s.describeCollection(ctx, conn, chain, pallet, entry)
			if err != nil {
				return nil, err
			}
			records = append(records, record)
		}
	}
	return records, nil
}

func (s *Scanner) describeItem(ctx context.Context, conn ChainConn, chain Chain, pallet substrate.Pallet, entry substrate.ItemEntry) (domain.ItemOnChainInfo, error) {
	ref := substrate.ItemRef{CollectionID: entry.CollectionID, ItemID: entry.ItemID}

	pointer, err := conn.ItemMetadataPointer(ctx, pallet, ref)
	if err != nil {
		return domain.ItemOnChainInfo{}, err
	}
	price, err := conn.ItemPrice(ctx, pallet, ref)
	if err != nil {
		return domain.ItemOnChainInfo{}, err
	}

	record := domain.ItemOnChainInfo{
		ChainName:    chain.Name,
		CollectionID: strconv.FormatUint(uint64(entry.CollectionID), 10),
		ItemID:       strconv.FormatUint(uint64(entry.ItemID), 10),
		IsNft:        pallet == substrate.PalletNfts,
		Owner:        entry.Owner,
		Creator:      entry.Creator,
		Price:        price,
		Data:         pointer,
	}

	// The uniques pallet carries no per-item creator; the collection
	// owner stands in for it.
	if record.Creator == "" {
		details, err := conn.CollectionDetails(ctx, pallet, entry.CollectionID)
		if err != nil {
			return domain.ItemOnChainInfo{}, err
		}
		if details != nil {
			record.Creator = details.Owner
		}
	}
	return record, nil
}

func (s *Scanner) describeCollection(ctx context.Context, conn ChainConn, chain Chain, pallet substrate.Pallet, entry substrate.CollectionEntry) (domain.ItemOnChainInfo, error) {
	pointer, err := conn.CollectionMetadataPointer(ctx, pallet, entry.CollectionID)
	if err != nil {
		return domain.ItemOnChainInfo{}, err
	}

	record := domain.ItemOnChainInfo{
		ChainName:    chain.Name,
		CollectionID: strconv.FormatUint(uint64(entry.CollectionID), 10),
		IsNft:        pallet == substrate.PalletNfts,
		IsCollection: true,
		Owner:        entry.Owner,
		Creator:      entry.Creator,
		Data:         pointer,
	}

	details, err := conn.CollectionDetails(ctx, pallet, entry.CollectionID)
	if err != nil {
		return domain.ItemOnChainInfo{}, err
	}
	if details != nil {
		items := details.Items
		record.Items = &items
		if record.Owner == "" {
			record.Owner = details.Owner
		}
	}
	return record, nil
}

// recordScan appends one telemetry row per chain attempt. Best effort;
// a logging failure never affects the scan.
func (s *Scanner) recordScan(ctx context.Context, chain Chain, addresses []string, records []domain.ItemOnChainInfo, started time.Time, attempt int, scanErr error) {
	if s.scanLog == nil {
		return
	}
	record := &storage.ScanRecord{
		ChainName:   chain.Name,
		Addresses:   len(addresses),
		ItemsFound:  len(records),
		DurationMs:  time.Since(started).Milliseconds(),
		Attempt:     attempt,
		ScannedAtMs: time.Now().UnixMilli(),
	}
	if scanErr != nil {
		record.ErrorMessage = scanErr.Error()
	}
	if err := s.scanLog.Insert(ctx, record); err != nil {
		s.logger.Printf("[scanner] scan log insert failed: %v", err)
	}
}
