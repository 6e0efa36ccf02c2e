package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/nosgate/internal/game/bazaar"
)

// BazaarRepository reads and writes market listings.
type BazaarRepository struct {
	db *pgxpool.Pool
}

// NewBazaarRepository creates a BazaarRepository backed by the given pool.
func NewBazaarRepository(db *pgxpool.Pool) *BazaarRepository {
	return &BazaarRepository{db: db}
}

// ListActive returns every unexpired listing, newest first.
// It satisfies bazaar.Loader.
func (r *BazaarRepository) ListActive(ctx context.Context) ([]bazaar.Listing, error) {
	rows, err := r.db.Query(ctx, `
		SELECT b.id, b.seller_id, c.name, b.item_vnum, b.amount, b.price, b.expires_at
		FROM bazaar_listings b JOIN characters c ON c.id = b.seller_id
		WHERE b.expires_at > NOW()
		ORDER BY b.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing bazaar: %w", err)
	}
	defer rows.Close()

	out := make([]bazaar.Listing, 0)
	for rows.Next() {
		var l bazaar.Listing
		if err := rows.Scan(&l.ID, &l.SellerID, &l.SellerName, &l.ItemVNum, &l.Amount, &l.Price, &l.ExpiresAt); err != nil {
			return nil, fmt.Errorf("scanning bazaar row: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// Create adds a listing that expires after ttl.
//
// Postcondition: Returns the listing id.
func (r *BazaarRepository) Create(ctx context.Context, sellerID int64, itemVNum, amount int, price int64, ttl time.Duration) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO bazaar_listings (seller_id, item_vnum, amount, price, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		sellerID, itemVNum, amount, price, time.Now().Add(ttl),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting bazaar listing: %w", err)
	}
	return id, nil
}
