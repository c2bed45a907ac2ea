// Package enrichment turns raw on-chain item records into enriched
// metadata by resolving their off-chain content pointers.
package enrichment

import (
	"context"
	"log"
	"strconv"

	"substrate-nft-lab/internal/domain"
	"substrate-nft-lab/internal/observability"
	"substrate-nft-lab/internal/resolver"
	"substrate-nft-lab/internal/substrate"
)

// ContentResolver resolves content pointers. Both methods return nil
// on failure rather than an error.
type ContentResolver interface {
	FetchJSON(ctx context.Context, pointer string) *domain.MetadataDocument
	FetchResource(ctx context.Context, pointer string) *resolver.ResourceInfo
}

// ItemCache is the slice of the cache manager the pipeline writes to.
// GetAll is used read-only for the collection-name side lookup.
type ItemCache interface {
	SetItemDetail(address string, key domain.ItemKey, detail *domain.ItemMetadata)
	GetAll() map[string][]domain.ItemInformation
}

// CollectionPointerSource is the chain query used by collection-name
// backfill.
type CollectionPointerSource interface {
	CollectionMetadataPointer(ctx context.Context, pallet substrate.Pallet, collectionID uint32) (string, error)
}

// Options configures Pipeline.
type Options struct {
	Resolver ContentResolver
	Cache    ItemCache
	Logger   *log.Logger
}

// Pipeline enriches one item at a time. Every Enrich call terminates in
// a committed detail, possibly nil; failures never propagate to the
// caller.
type Pipeline struct {
	resolver ContentResolver
	cache    ItemCache
	logger   *log.Logger
}

// New creates a Pipeline.
func New(opts Options) *Pipeline {
	p := &Pipeline{
		resolver: opts.Resolver,
		cache:    opts.Cache,
		logger:   opts.Logger,
	}
	if p.logger == nil {
		p.logger = log.Default()
	}
	return p
}

// Enrich resolves item's metadata pointer and commits the result to the
// cache under address. A missing or unresolvable pointer commits a nil
// detail, which the cache records as the terminal no-data state.
func (p *Pipeline) Enrich(ctx context.Context, address string, item domain.ItemOnChainInfo) {
	detail := p.buildDetail(ctx, item)
	if detail == nil {
		observability.RecordEnrichment("no_data")
	} else {
		observability.RecordEnrichment("enriched")
	}
	p.cache.SetItemDetail(address, item.Key(), detail)
}

func (p *Pipeline) buildDetail(ctx context.Context, item domain.ItemOnChainInfo) (detail *domain.ItemMetadata) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Printf("[enrichment] panic enriching %s: %v", item.Key(), r)
			detail = nil
		}
	}()

	if item.Data == "" {
		return nil
	}

	doc := p.resolver.FetchJSON(ctx, item.Data)
	if doc == nil {
		return nil
	}
	doc.Normalize()

	detail = &domain.ItemMetadata{
		Name:        doc.Name,
		Description: doc.Description,
		MediaURI:    doc.MediaURI,
		Attributes:  doc.DisplayAttributes(),
	}
	if doc.MetadataLink != "" {
		link := doc.MetadataLink
		detail.MetadataLink = &link
	}

	// Media fields are resolved only when the document declares them.
	if doc.Image != nil {
		if info := p.resolver.FetchResource(ctx, *doc.Image); info != nil {
			detail.Image = &info.URL
			detail.ImageContentType = &info.ContentType
		}
	}
	if doc.AnimationURL != nil {
		if info := p.resolver.FetchResource(ctx, *doc.AnimationURL); info != nil {
			detail.AnimationURL = &info.URL
			detail.AnimationContentType = &info.ContentType
		}
	}

	if !item.IsCollection {
		if name := p.siblingCollectionName(item); name != nil {
			detail.CollectionName = name
		}
	}
	return detail
}

// siblingCollectionName searches the cache for an already-enriched
// collection record matching the item's collection. Read-only; never
// triggers a fetch.
func (p *Pipeline) siblingCollectionName(item domain.ItemOnChainInfo) *string {
	for _, items := range p.cache.GetAll() {
		for i := range items {
			sibling := &items[i]
			if !sibling.IsCollection {
				continue
			}
			if sibling.ChainName == item.ChainName && sibling.CollectionID == item.CollectionID && sibling.IsNft == item.IsNft && sibling.Name != nil {
				return sibling.Name
			}
		}
	}
	return nil
}

// BackfillCollectionName fetches the collection's own metadata when the
// sibling record has not been enriched yet, committing just the name.
// Used for items that are not collections and still lack a collection
// name.
func (p *Pipeline) BackfillCollectionName(ctx context.Context, source CollectionPointerSource, address string, item domain.ItemOnChainInfo) {
	if item.IsCollection {
		return
	}

	collectionID, err := strconv.ParseUint(item.CollectionID, 10, 32)
	if err != nil {
		p.logger.Printf("[enrichment] bad collection id %q: %v", item.CollectionID, err)
		return
	}

	pallet := substrate.PalletUniques
	if item.IsNft {
		pallet = substrate.PalletNfts
	}
	pointer, err := source.CollectionMetadataPointer(ctx, pallet, uint32(collectionID))
	if err != nil {
		p.logger.Printf("[enrichment] collection metadata query failed for %s: %v", item.Key(), err)
		return
	}
	if pointer == "" {
		return
	}

	doc := p.resolver.FetchJSON(ctx, pointer)
	if doc == nil || doc.Name == nil {
		return
	}
	p.cache.SetItemDetail(address, item.Key(), &domain.ItemMetadata{CollectionName: doc.Name})
}
