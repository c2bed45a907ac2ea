// Package domain defines the core data model shared by the scanner,
// the enrichment pipeline, and the cache manager.
package domain

import "fmt"

// ItemOnChainInfo is a raw item or collection record as observed on-chain.
// Records are immutable once produced by a scan; the cache only ever
// appends them.
type ItemOnChainInfo struct {
	ChainName    string `json:"chainName"`
	CollectionID string `json:"collectionId,omitempty"`
	ItemID       string `json:"itemId,omitempty"`

	// IsNft reports which of the two parallel pallets the record came
	// from: true for the nfts pallet, false for the uniques pallet.
	// Field semantics (creator, price) differ between the two.
	IsNft bool `json:"isNft"`

	// IsCollection marks a collection header rather than an individual item.
	IsCollection bool `json:"isCollection,omitempty"`

	Owner   string `json:"owner"`
	Creator string `json:"creator,omitempty"`

	// Price is the listed price in the smallest on-chain unit.
	// nil means not listed or not queried.
	Price *uint64 `json:"price,omitempty"`

	// Items is the item count, present only on collection records.
	Items *uint32 `json:"items,omitempty"`

	// Data is the opaque metadata pointer (ipfs:// URI, gateway URL,
	// or raw bytes reference). Empty means the chain holds no pointer.
	Data string `json:"data,omitempty"`
}

// Key returns the identity key used for cache de-duplication.
// Two records with equal keys are the same logical item regardless of
// owner or price differences between scans.
func (i *ItemOnChainInfo) Key() ItemKey {
	return ItemKey{
		ChainName:    i.ChainName,
		CollectionID: i.CollectionID,
		ItemID:       i.ItemID,
		IsNft:        i.IsNft,
	}
}

// ItemKey identifies a logical item across scans.
type ItemKey struct {
	ChainName    string
	CollectionID string
	ItemID       string
	IsNft        bool
}

func (k ItemKey) String() string {
	return fmt.Sprintf("%s/%s/%s/nft=%t", k.ChainName, k.CollectionID, k.ItemID, k.IsNft)
}

// Attribute is a single trait label on an item.
type Attribute struct {
	TraitType string `json:"trait_type"`
	Value     string `json:"value"`
}

// ItemMetadata holds the enrichment result for one item. All fields are
// derived and replaceable; pointer fields are nil until resolved.
type ItemMetadata struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`

	// Image and AnimationURL are resolved final URLs.
	Image        *string `json:"image,omitempty"`
	AnimationURL *string `json:"animation_url,omitempty"`

	ImageContentType     *string `json:"imageContentType,omitempty"`
	AnimationContentType *string `json:"animationContentType,omitempty"`

	Attributes []Attribute `json:"attributes,omitempty"`

	// MetadataLink is the URL the JSON document was actually fetched from.
	MetadataLink *string `json:"metadataLink,omitempty"`

	// CollectionName comes from a sibling collection record in the
	// cache, not from the item's own metadata document.
	CollectionName *string `json:"collectionName,omitempty"`

	// MediaURI is the raw pointer as found in uniques-dialect metadata,
	// prior to normalization into Image.
	MediaURI *string `json:"mediaUri,omitempty"`
}

// ItemInformation is the full cached record: on-chain fields plus
// whatever enrichment has produced so far.
type ItemInformation struct {
	ItemOnChainInfo
	ItemMetadata

	// NoData means enrichment was attempted and yielded nothing;
	// consumers must not retry automatically.
	NoData bool `json:"noData,omitempty"`
}

// MergeDetail shallow-merges detail into the record. Only fields set in
// detail are copied; previously-set fields outside the merged keys are
// retained. A nil detail records the NoData sentinel instead.
func (i *ItemInformation) MergeDetail(detail *ItemMetadata) {
	if detail == nil {
		i.NoData = true
		return
	}
	if detail.Name != nil {
		i.Name = detail.Name
	}
	if detail.Description != nil {
		i.Description = detail.Description
	}
	if detail.Image != nil {
		i.Image = detail.Image
	}
	if detail.AnimationURL != nil {
		i.AnimationURL = detail.AnimationURL
	}
	if detail.ImageContentType != nil {
		i.ImageContentType = detail.ImageContentType
	}
	if detail.AnimationContentType != nil {
		i.AnimationContentType = detail.AnimationContentType
	}
	if detail.Attributes != nil {
		i.Attributes = detail.Attributes
	}
	if detail.MetadataLink != nil {
		i.MetadataLink = detail.MetadataLink
	}
	if detail.CollectionName != nil {
		i.CollectionName = detail.CollectionName
	}
	if detail.MediaURI != nil {
		i.MediaURI = detail.MediaURI
	}
}
