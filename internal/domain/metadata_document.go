package domain

import "encoding/json"

// MetadataDocument is the raw off-chain JSON document referenced by an
// item's metadata pointer. Two dialects exist in the wild: the nfts
// dialect uses image/animation_url, the uniques dialect uses mediaUri.
// Normalize unifies them.
type MetadataDocument struct {
	Name         *string         `json:"name,omitempty"`
	Description  *string         `json:"description,omitempty"`
	Image        *string         `json:"image,omitempty"`
	AnimationURL *string         `json:"animation_url,omitempty"`
	MediaURI     *string         `json:"mediaUri,omitempty"`
	Attributes   []RawAttribute  `json:"attributes,omitempty"`
	Extra        json.RawMessage `json:"-"`

	// MetadataLink records where the document was fetched from.
	// It is set by the resolver, not parsed from the body.
	MetadataLink string `json:"-"`
}

// RawAttribute tolerates non-string trait values seen in the wild.
type RawAttribute struct {
	TraitType string          `json:"trait_type"`
	Value     json.RawMessage `json:"value"`
}

// StringValue renders the attribute value as a display string.
func (a RawAttribute) StringValue() string {
	var s string
	if err := json.Unmarshal(a.Value, &s); err == nil {
		return s
	}
	return string(a.Value)
}

// Normalize reconciles the uniques dialect into the nfts shape: a
// document with mediaUri and no image gets mediaUri copied into image.
// This is the single point where the two dialects are unified.
func (d *MetadataDocument) Normalize() {
	if d.Image == nil && d.MediaURI != nil {
		d.Image = d.MediaURI
	}
}

// DisplayAttributes converts raw attributes to string pairs.
func (d *MetadataDocument) DisplayAttributes() []Attribute {
	if len(d.Attributes) == 0 {
		return nil
	}
	out := make([]Attribute, 0, len(d.Attributes))
	for _, a := range d.Attributes {
		out = append(out, Attribute{TraitType: a.TraitType, Value: a.StringValue()})
	}
	return out
}
