package server

// Config holds configuration for the HTTP server.
type Config struct {
	// Port is the port where the server will listen.
	Port string `mapstructure:"port" default:"8080" validate:"required,numeric"`
	// ApiKey is the secret key required to access the API. Empty disables authentication.
	ApiKey string `mapstructure:"api_key" default:""`
	// MaxUploadMB caps the size of an uploaded spreadsheet.
	MaxUploadMB int `mapstructure:"max_upload_mb" default:"5" validate:"gte=1"`
	// DefaultActor is recorded as the author of changes when a request names none.
	DefaultActor string `mapstructure:"default_actor" default:"system"`
}

// MaxUploadBytes returns the upload limit in bytes.
func (c Config) MaxUploadBytes() int64 {
	if c.MaxUploadMB <= 0 {
		return 5 << 20
	}
	return int64(c.MaxUploadMB) << 20
}

// BodyLimit returns the Fiber body limit, leaving room for multipart overhead.
func (c Config) BodyLimit() int {
	return int(c.MaxUploadBytes()) + 1<<20
}
