// Package middleware contains HTTP middleware for the Fiber application.
//
// # Components
//
//   - rayid: tags every request with a ray id (X-Ray-ID), stored in the fiber
//     locals for logger.WithRayID and echoed in the response.
//   - auth: API key guard (X-API-Key). Disabled when no key is configured.
//   - RequestLogger: one structured log line per request.
//
// Register rayid first so every later log line carries the id:
//
//	app.Use(rayid.New())
//	app.Use(middleware.RequestLogger(log))
//	app.Use(auth.New(auth.Config{ApiKey: cfg.Server.ApiKey, Skip: []string{"/swagger"}}))
package middleware
