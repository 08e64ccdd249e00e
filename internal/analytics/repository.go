package analytics

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/shiftledger/internal/shift"
)

// PGRepository reads POS receipt lines from PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PGRepository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const soldLinesQuery = `
SELECT l.sku,
       MAX(l.name),
       MAX(l.category),
       SUM(l.quantity)::bigint,
       COALESCE(MAX(u.rolls_per_item), 0)::bigint,
       COALESCE(MAX(u.patties_per_item), 0)::bigint,
       COALESCE(MAX(u.drinks_per_item), 0)::bigint
FROM pos_receipt_lines l
JOIN pos_receipts r ON r.id = l.receipt_id
LEFT JOIN menu_item_usage u ON u.sku = l.sku
WHERE r.closed_at >= $1 AND r.closed_at < $2 AND NOT r.voided
GROUP BY l.sku
ORDER BY l.sku`

// SoldLines aggregates non-voided receipt lines closed inside the window.
func (r *PGRepository) SoldLines(ctx context.Context, window shift.Window) ([]SoldLine, error) {
	rows, err := r.pool.Query(ctx, soldLinesQuery, window.From, window.To)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []SoldLine
	for rows.Next() {
		var line SoldLine
		if err := rows.Scan(
			&line.SKU,
			&line.Name,
			&line.Category,
			&line.Quantity,
			&line.RollsPerItem,
			&line.PattiesPerItem,
			&line.DrinksPerItem,
		); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}
