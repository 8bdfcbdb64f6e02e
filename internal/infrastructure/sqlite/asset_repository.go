package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/trade-hub/trade-hub/internal/domain/asset"
)

// AssetRepository implements asset.Repository.
type AssetRepository struct {
	db *sql.DB
}

func (r *AssetRepository) FindByRefs(ctx context.Context, refs []asset.Ref) (map[asset.Ref]*asset.Asset, error) {
	return findAssets(ctx, r.db, refs)
}

func (r *AssetRepository) Upsert(ctx context.Context, a *asset.Asset) error {
	if err := a.Ref.Validate(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO assets (asset_kind, asset_id, owner, is_tradable, name, image_url, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (asset_kind, asset_id) DO UPDATE SET
	owner = excluded.owner,
	is_tradable = excluded.is_tradable,
	name = excluded.name,
	image_url = excluded.image_url,
	updated_at = excluded.updated_at
`, a.Kind, a.ID, a.Owner, boolToInt(a.IsTradable), a.Name, a.ImageURL, toMillis(time.Now()))
	if err != nil {
		return fmt.Errorf("upsert asset %s: %w", a.Ref, err)
	}
	return nil
}

func findAssets(ctx context.Context, q querier, refs []asset.Ref) (map[asset.Ref]*asset.Asset, error) {
	found := make(map[asset.Ref]*asset.Asset, len(refs))
	if len(refs) == 0 {
		return found, nil
	}
	conds := make([]string, len(refs))
	args := make([]any, 0, 2*len(refs))
	for i, ref := range refs {
		conds[i] = "(asset_kind = ? AND asset_id = ?)"
		args = append(args, ref.Kind, ref.ID)
	}
	rows, err := q.QueryContext(ctx, `
SELECT asset_kind, asset_id, owner, is_tradable, name, image_url
FROM assets
WHERE `+strings.Join(conds, " OR ")+`
ORDER BY asset_kind, asset_id
`, args...)
	if err != nil {
		return nil, fmt.Errorf("find assets: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var a asset.Asset
		var tradable int64
		if err := rows.Scan(&a.Kind, &a.ID, &a.Owner, &tradable, &a.Name, &a.ImageURL); err != nil {
			return nil, err
		}
		a.IsTradable = tradable != 0
		found[a.Ref] = &a
	}
	return found, rows.Err()
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
