package asset

import "context"

// Repository reads and seeds the asset store. Ownership changes only happen inside settlement.
type Repository interface {
	FindByRefs(ctx context.Context, refs []Ref) (map[Ref]*Asset, error)
	Upsert(ctx context.Context, a *Asset) error
}
