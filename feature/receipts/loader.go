package receipts

import (
	"receipt-ledger/core/reconcile"
	"receipt-ledger/core/server"
	"receipt-ledger/core/storage"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Feature implements the loader.Feature interface.
type Feature struct {
	service *Service
	handler *Handler
}

// NewFeature creates the receipts feature. archive may be nil.
func NewFeature(engine *reconcile.Engine, archive *storage.Archive, logger *zap.Logger, cfg server.Config) *Feature {
	svc := NewService(engine, archive, logger, cfg)
	return &Feature{service: svc, handler: NewHandler(svc)}
}

// Name returns the name of the feature.
func (f *Feature) Name() string {
	return "receipts"
}

// IsEnabled checks if the feature is enabled.
func (f *Feature) IsEnabled() bool {
	return true
}

// Load registers the feature's routes.
func (f *Feature) Load(app fiber.Router) error {
	f.handler.RegisterRoutes(app)
	return nil
}

// Service returns the feature's service.
func (f *Feature) Service() *Service {
	return f.service
}
