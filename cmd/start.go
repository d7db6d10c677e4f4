package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"receipt-ledger/core/loader"
	"receipt-ledger/core/middleware"
	"receipt-ledger/core/middleware/auth"
	"receipt-ledger/core/middleware/rayid"

	"receipt-ledger/feature/integrity"
	"receipt-ledger/feature/receipts"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/swagger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	_ "receipt-ledger/docs/swagger"
)

// @title Receipt Ledger API
// @version 1.0
// @description API for reconciling fee receipt spreadsheets into a versioned, audited ledger.
// @host localhost:8080
// @BasePath /
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key

// startCmd represents the start command
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the receipt ledger server",
	Long:  `Starts the HTTP server and initializes all enabled features.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// 1. Configuration, logger, ledger store, lock and archive
		rt, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		defer rt.Close()
		logg := rt.log
		zap.ReplaceGlobals(logg)

		// 2. Initialize Fiber App
		app := fiber.New(fiber.Config{
			DisableStartupMessage: true, // We will log our own startup message
			BodyLimit:             rt.cfg.Server.BodyLimit(),
		})

		// 3. Initialize Feature Loader
		mgr := loader.NewManager(logg)
		mgr.Register(receipts.NewFeature(rt.engine, rt.archive, logg, rt.cfg.Server))
		mgr.Register(integrity.NewFeature(rt.db, rt.store, rt.archive, logg))

		// Middleware Registration
		// 1. RayID (Must be first to trace everything)
		app.Use(rayid.New())

		// 2. Logging Middleware (Zap + RayID)
		app.Use(middleware.RequestLogger(logg))

		// 2.5 Swagger Documentation (Public)
		app.Get("/swagger/*", swagger.HandlerDefault)

		// 3. Auth (Protect API)
		app.Use(auth.New(auth.Config{ApiKey: rt.cfg.Server.ApiKey}))

		// 4. Load Features
		if err := mgr.LoadAll(app); err != nil {
			return err
		}

		// 5. Start Server
		errCh := make(chan error, 1)
		go func() {
			logg.Info("Starting server", zap.String("port", rt.cfg.Server.Port))
			errCh <- app.Listen(":" + rt.cfg.Server.Port)
		}()

		// 6. Graceful Shutdown
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		select {
		case err := <-errCh:
			return err
		case <-c:
		}
		logg.Info("Shutting down server...")
		return app.Shutdown()
	},
}

func init() {
	RootCmd.AddCommand(startCmd)
}
