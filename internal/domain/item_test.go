package domain

import (
	"encoding/json"
	"testing"
)

func strPtr(s string) *string { return &s }

func TestItemKey_Equality(t *testing.T) {
	a := ItemOnChainInfo{ChainName: "unique", CollectionID: "12", ItemID: "7", IsNft: true, Owner: "addr1"}
	b := ItemOnChainInfo{ChainName: "unique", CollectionID: "12", ItemID: "7", IsNft: true, Owner: "addr2"}

	if a.Key() != b.Key() {
		t.Errorf("records differing only in owner must share an identity key")
	}

	c := b
	c.IsNft = false
	if a.Key() == c.Key() {
		t.Errorf("pallet flag must be part of the identity key")
	}
}

func TestMergeDetail_Additive(t *testing.T) {
	item := ItemInformation{}
	item.MergeDetail(&ItemMetadata{Name: strPtr("A")})
	item.MergeDetail(&ItemMetadata{Description: strPtr("B")})

	if item.Name == nil || *item.Name != "A" {
		t.Errorf("merge dropped previously-set name: %+v", item.ItemMetadata)
	}
	if item.Description == nil || *item.Description != "B" {
		t.Errorf("merge did not apply description: %+v", item.ItemMetadata)
	}
}

func TestMergeDetail_NilSetsNoData(t *testing.T) {
	item := ItemInformation{}
	item.MergeDetail(&ItemMetadata{Name: strPtr("A")})
	item.MergeDetail(nil)

	if !item.NoData {
		t.Error("nil detail must set the NoData sentinel")
	}
	if item.Name == nil || *item.Name != "A" {
		t.Error("nil detail must not erase existing fields")
	}
}

func TestMetadataDocument_Normalize(t *testing.T) {
	doc := MetadataDocument{MediaURI: strPtr("ipfs://QmMedia")}
	doc.Normalize()
	if doc.Image == nil || *doc.Image != "ipfs://QmMedia" {
		t.Errorf("mediaUri must be copied into image, got %+v", doc.Image)
	}

	// An explicit image wins over mediaUri.
	doc = MetadataDocument{Image: strPtr("ipfs://QmImage"), MediaURI: strPtr("ipfs://QmMedia")}
	doc.Normalize()
	if *doc.Image != "ipfs://QmImage" {
		t.Errorf("existing image must not be overwritten, got %s", *doc.Image)
	}
}

func TestRawAttribute_StringValue(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{`"Blue"`, "Blue"},
		{`42`, "42"},
		{`true`, "true"},
	}
	for _, c := range cases {
		a := RawAttribute{TraitType: "trait", Value: json.RawMessage(c.raw)}
		if got := a.StringValue(); got != c.want {
			t.Errorf("StringValue(%s) = %q, want %q", c.raw, got, c.want)
		}
	}
}
