package substrate

import (
	"context"
	"fmt"
)

// Pallet identifies which on-chain asset pallet a query targets. The
// two pallets store items in different shapes but answer the same
// logical questions.
type Pallet string

const (
	PalletNfts    Pallet = "nfts"
	PalletUniques Pallet = "uniques"
)

// ItemRef identifies one item within a collection.
type ItemRef struct {
	CollectionID uint32 `json:"collectionId"`
	ItemID       uint32 `json:"itemId"`
}

// ItemEntry is one owned-items storage row. Creator is the deposit
// payer; the uniques pallet does not track it per item.
type ItemEntry struct {
	CollectionID uint32 `json:"collectionId"`
	ItemID       uint32 `json:"itemId"`
	Owner        string `json:"owner"`
	Creator      string `json:"creator"`
}

// CollectionEntry is one owned-collections storage row.
type CollectionEntry struct {
	CollectionID uint32 `json:"collectionId"`
	Creator      string `json:"creator"`
	Owner        string `json:"owner"`
}

// CollectionDetails is the collection-level storage record.
type CollectionDetails struct {
	Owner string `json:"owner"`
	Items uint32 `json:"items"`
}

// metadataRecord is the raw metadata storage value; Data carries the
// off-chain content pointer.
type metadataRecord struct {
	Data string `json:"data"`
}

type priceRecord struct {
	Price uint64 `json:"price,string"`
}

// Querier is the typed asset query surface used by the scanner.
type Querier interface {
	ItemsOwned(ctx context.Context, pallet Pallet, address string) ([]ItemEntry, error)
	CollectionsOwned(ctx context.Context, pallet Pallet, address string) ([]CollectionEntry, error)
	ItemMetadataPointer(ctx context.Context, pallet Pallet, ref ItemRef) (string, error)
	ItemPrice(ctx context.Context, pallet Pallet, ref ItemRef) (*uint64, error)
	CollectionMetadataPointer(ctx context.Context, pallet Pallet, collectionID uint32) (string, error)
	CollectionDetails(ctx context.Context, pallet Pallet, collectionID uint32) (*CollectionDetails, error)
}

// Compile-time interface check.
var _ Querier = (*Client)(nil)

// method builds the namespaced RPC method name for a pallet query.
func method(pallet Pallet, name string) string {
	return fmt.Sprintf("%s_%s", pallet, name)
}

// ItemsOwned lists items owned by address in the given pallet.
func (c *Client) ItemsOwned(ctx context.Context, pallet Pallet, address string) ([]ItemEntry, error) {
	var entries []ItemEntry
	if err := c.Call(ctx, method(pallet, "account"), []interface{}{address}, &entries); err != nil {
		return nil, fmt.Errorf("query %s items for %s: %w", pallet, address, err)
	}
	return entries, nil
}

// CollectionsOwned lists collections owned by address in the given pallet.
func (c *Client) CollectionsOwned(ctx context.Context, pallet Pallet, address string) ([]CollectionEntry, error) {
	var entries []CollectionEntry
	if err := c.Call(ctx, method(pallet, "collectionAccount"), []interface{}{address}, &entries); err != nil {
		return nil, fmt.Errorf("query %s collections for %s: %w", pallet, address, err)
	}
	return entries, nil
}

// ItemMetadataPointer returns the item's metadata content pointer, or
// empty string when the item carries no metadata entry.
func (c *Client) ItemMetadataPointer(ctx context.Context, pallet Pallet, ref ItemRef) (string, error) {
	var record *metadataRecord
	err := c.Call(ctx, method(pallet, "itemMetadata"),
		[]interface{}{ref.CollectionID, ref.ItemID}, &record)
	if err != nil {
		return "", fmt.Errorf("query %s item metadata %d/%d: %w", pallet, ref.CollectionID, ref.ItemID, err)
	}
	if record == nil {
		return "", nil
	}
	return record.Data, nil
}

// ItemPrice returns the item's listed price, or nil when unlisted.
// Only the nfts pallet tracks listings.
func (c *Client) ItemPrice(ctx context.Context, pallet Pallet, ref ItemRef) (*uint64, error) {
	if pallet != PalletNfts {
		return nil, nil
	}
	var record *priceRecord
	err := c.Call(ctx, method(pallet, "itemPrice"),
		[]interface{}{ref.CollectionID, ref.ItemID}, &record)
	if err != nil {
		return nil, fmt.Errorf("query item price %d/%d: %w", ref.CollectionID, ref.ItemID, err)
	}
	if record == nil {
		return nil, nil
	}
	return &record.Price, nil
}

// CollectionMetadataPointer returns the collection's metadata content
// pointer, or empty string when absent.
func (c *Client) CollectionMetadataPointer(ctx context.Context, pallet Pallet, collectionID uint32) (string, error) {
	var record *metadataRecord
	err := c.Call(ctx, method(pallet, "collectionMetadata"),
		[]interface{}{collectionID}, &record)
	if err != nil {
		return "", fmt.Errorf("query %s collection metadata %d: %w", pallet, collectionID, err)
	}
	if record == nil {
		return "", nil
	}
	return record.Data, nil
}

// CollectionDetails returns the collection storage record, or nil when
// the collection does not exist.
func (c *Client) CollectionDetails(ctx context.Context, pallet Pallet, collectionID uint32) (*CollectionDetails, error) {
	var details *CollectionDetails
	err := c.Call(ctx, method(pallet, "collection"),
		[]interface{}{collectionID}, &details)
	if err != nil {
		return nil, fmt.Errorf("query %s collection %d: %w", pallet, collectionID, err)
	}
	return details, nil
}
