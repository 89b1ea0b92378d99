package repo

import (
	"context"
	"database/sql"

	"storefront-checkout/internal/domain"
)

type CatalogRepo interface {
	// Products returns the active catalogue entries among ids, keyed by id.
	// Unknown or inactive ids are simply absent.
	Products(ctx context.Context, ids []int64) (map[int64]domain.Product, error)
}

type catalogRepo struct {
	db *sql.DB
}

func NewCatalogRepo(db *sql.DB) CatalogRepo {
	return &catalogRepo{db: db}
}

func (r *catalogRepo) Products(ctx context.Context, ids []int64) (map[int64]domain.Product, error) {
	out := make(map[int64]domain.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, COALESCE(parent_id, 0), name, price_minor
		FROM products WHERE active AND id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.ParentID, &p.Name, &p.PriceMinor); err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}
