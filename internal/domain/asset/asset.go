package asset

import (
	"errors"
	"strings"
)

var ErrInvalidRef = errors.New("asset reference requires assetKind and assetId")

// Ref identifies an asset inside its storage partition.
type Ref struct {
	Kind string `json:"assetKind"`
	ID   string `json:"assetId"`
}

func (r Ref) String() string {
	return r.Kind + "/" + r.ID
}

// Validate checks that both parts of the reference are present.
func (r Ref) Validate() error {
	if strings.TrimSpace(r.Kind) == "" || strings.TrimSpace(r.ID) == "" {
		return ErrInvalidRef
	}
	return nil
}

// Less orders refs by kind, then id. Row locks are taken in this order.
func (r Ref) Less(o Ref) bool {
	if r.Kind != o.Kind {
		return r.Kind < o.Kind
	}
	return r.ID < o.ID
}

// Asset is a uniquely-owned collectible referenced by trades.
type Asset struct {
	Ref
	Owner      string `json:"owner"`
	IsTradable bool   `json:"isTradable"`
	Name       string `json:"name"`
	ImageURL   string `json:"imageUrl,omitempty"`
}
