// Package catalog provides read-only access to the menu catalog. The catalog
// itself is maintained elsewhere; the order core only resolves products.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"cantina-pos/internal/database"
	"cantina-pos/internal/models"
)

// Catalog resolves product ids to their name, price and prep time
type Catalog struct {
	db *database.DB
}

// New creates a catalog backed by the products table
func New(db *database.DB) *Catalog {
	return &Catalog{db: db}
}

// GetProduct looks up a product by id
func (c *Catalog) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product

	err := c.db.QueryRow(ctx, database.GetProductSQL, id).Scan(
		&product.ID,
		&product.Name,
		&product.Price,
		&product.PrepMinutes,
		&product.Station,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to query product %d: %w", id, err)
	}

	return &product, nil
}
