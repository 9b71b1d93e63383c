package config

type Config struct {
	ServerAddr string `mapstructure:"server_addr"`
}
