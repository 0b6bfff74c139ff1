//go:build !protogen

package catalog

import (
	"log/slog"

	"github.com/tmachado/agendly/libs/db"
)

func NewProvider(_ *slog.Logger, pool *db.Pool, _ string) (Catalog, error) {
	return NewPG(pool), nil
}
