package config

// EnvPrefix is intentionally empty: every variable carries the full
// VERACART_ name in its envconfig tag.
const EnvPrefix = ""

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	LedgerBackendLocal = "local"
	LedgerBackendRPC   = "rpc"
)

const (
	EnvDBDSN  = "VERACART_DB_DSN"
	EnvDBHost = "VERACART_DB_HOST"
	EnvDBUser = "VERACART_DB_USER"
	EnvDBName = "VERACART_DB_NAME"
)

var requiredDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
