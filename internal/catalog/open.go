package catalog

import (
	"context"
	"fmt"
)

// Supported store drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config selects and configures a store backend
type Config struct {
	Driver    string `koanf:"driver" validate:"required,oneof=sqlite postgres"`
	DSN       string `koanf:"dsn" validate:"required"`
	Dimension int    `koanf:"dimension" validate:"required,min=1"`
}

// Open creates the store named by cfg.Driver
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case DriverSQLite, "":
		return NewSQLiteStore(cfg.DSN)
	case DriverPostgres:
		return NewPostgresStore(ctx, cfg.DSN, cfg.Dimension)
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}
}

var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PostgresStore)(nil)
)
