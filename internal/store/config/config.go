package config

// DBDsn selects the postgres backend when set; otherwise per-account JSON
// files are kept under DataDir.
type Config struct {
	DBDsn   string `mapstructure:"db_dsn"`
	DataDir string `mapstructure:"data_dir"`
}
