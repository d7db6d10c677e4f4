package database

// Config holds configuration for the database connection.
type Config struct {
	// Driver selects the ledger backend (mysql, sqlite, memory).
	Driver string `mapstructure:"driver" default:"mysql" validate:"oneof=mysql sqlite memory"`
	// Host is the database host.
	Host string `mapstructure:"host" default:"localhost"`
	// Port is the database port.
	Port int `mapstructure:"port" default:"3306"`
	// User is the database user.
	User string `mapstructure:"user" default:"root"`
	// Password is the database password.
	Password string `mapstructure:"password" default:""`
	// Name is the database name, or the file path (or DSN) for sqlite.
	Name string `mapstructure:"name" default:"receipts"`
	// TimeoutSeconds bounds connection setup and every read and write.
	TimeoutSeconds int `mapstructure:"timeout_seconds" default:"30" validate:"gte=0"`
	// MaxOpenConns caps the connection pool. Forced to 1 for sqlite.
	MaxOpenConns int `mapstructure:"max_open_conns" default:"50"`
}
