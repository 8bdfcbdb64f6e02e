package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/trade-hub/trade-hub/internal/domain/asset"
)

// AssetRepository implements asset.Repository.
type AssetRepository struct {
	pool *pgxpool.Pool
}

func NewAssetRepository(pool *pgxpool.Pool) *AssetRepository {
	return &AssetRepository{pool: pool}
}

func (r *AssetRepository) FindByRefs(ctx context.Context, refs []asset.Ref) (map[asset.Ref]*asset.Asset, error) {
	return findAssets(ctx, r.pool, refs, false)
}

func (r *AssetRepository) Upsert(ctx context.Context, a *asset.Asset) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO assets (asset_kind, asset_id, owner, is_tradable, name, image_url, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,now())
		ON CONFLICT (asset_kind, asset_id) DO UPDATE
		SET owner=EXCLUDED.owner, is_tradable=EXCLUDED.is_tradable, name=EXCLUDED.name,
			image_url=EXCLUDED.image_url, updated_at=EXCLUDED.updated_at
	`, a.Kind, a.ID, a.Owner, a.IsTradable, a.Name, a.ImageURL)
	return err
}

// findAssets loads the referenced assets. With lock set the rows are locked in (kind, id) order.
func findAssets(ctx context.Context, q querier, refs []asset.Ref, lock bool) (map[asset.Ref]*asset.Asset, error) {
	found := make(map[asset.Ref]*asset.Asset, len(refs))
	if len(refs) == 0 {
		return found, nil
	}
	kinds := make([]string, len(refs))
	ids := make([]string, len(refs))
	for i, ref := range refs {
		kinds[i], ids[i] = ref.Kind, ref.ID
	}

	sql := `
		SELECT asset_kind, asset_id, owner, is_tradable, name, image_url
		FROM assets
		WHERE (asset_kind, asset_id) IN (SELECT * FROM unnest($1::text[], $2::text[]))
		ORDER BY asset_kind, asset_id`
	if lock {
		sql += ` FOR UPDATE`
	}
	rows, err := q.Query(ctx, sql, kinds, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var a asset.Asset
		if err := rows.Scan(&a.Kind, &a.ID, &a.Owner, &a.IsTradable, &a.Name, &a.ImageURL); err != nil {
			return nil, err
		}
		found[a.Ref] = &a
	}
	return found, rows.Err()
}
