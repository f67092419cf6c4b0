package ledger

import (
	"context"
	"fmt"

	"ms-lectures/internal/models"

	"github.com/uptrace/bun"
)

// Migrate creates the ledger tables and secondary-key indexes.
func Migrate(ctx context.Context, db *bun.DB) error {
	tables := []interface{}{
		(*models.ProvisionalOrder)(nil),
		(*models.Order)(nil),
		(*models.Customer)(nil),
	}
	for _, model := range tables {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}

	indexes := []struct {
		name    string
		model   interface{}
		columns []string
	}{
		{"idx_orders_payment_ref", (*models.Order)(nil), []string{"payment_ref"}},
		{"idx_orders_user_id", (*models.Order)(nil), []string{"user_id"}},
		{"idx_provisional_status", (*models.ProvisionalOrder)(nil), []string{"status"}},
	}
	for _, idx := range indexes {
		q := db.NewCreateIndex().Model(idx.model).IfNotExists().Index(idx.name)
		for _, col := range idx.columns {
			q = q.Column(col)
		}
		if _, err := q.Exec(ctx); err != nil {
			return fmt.Errorf("create index %s: %w", idx.name, err)
		}
	}
	return nil
}
