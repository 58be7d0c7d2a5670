package config

const EnvPrefix = "RIFA"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvDBDSN  = "RIFA_DB_DSN"
	EnvDBHost = "RIFA_DB_HOST"
	EnvDBUser = "RIFA_DB_USER"
	EnvDBName = "RIFA_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
