package http

import (
	"github.com/nats-io/nats.go"

	"github.com/aitzol/tilescout/internal/adapters/postgres"
	"github.com/aitzol/tilescout/internal/adapters/valkey"
	"github.com/aitzol/tilescout/internal/core/ports"
	"github.com/aitzol/tilescout/internal/core/usecases"
)

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Rasterizer *usecases.RasterizeService
	Ingest     *usecases.IngestService
	Search     *usecases.SearchService
	Detect     *usecases.DetectService
	Runs       ports.RunRepository
	NATS       *nats.Conn
	DB         *postgres.DB
	Cache      *valkey.Cache
}
