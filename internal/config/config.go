package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	blingConfig "blingsync/internal/bling/config"
	handlerConfig "blingsync/internal/handler/config"
	loggerConfig "blingsync/internal/logger/config"
	"blingsync/internal/model"
	storeConfig "blingsync/internal/store/config"
	syncConfig "blingsync/internal/sync/config"
	tokenConfig "blingsync/internal/token/config"
)

type Config struct {
	Handler  handlerConfig.Config `mapstructure:"handler"`
	Logger   loggerConfig.Config  `mapstructure:"logger"`
	Store    storeConfig.Config   `mapstructure:"store"`
	Bling    blingConfig.Config   `mapstructure:"bling"`
	Token    tokenConfig.Config   `mapstructure:"token"`
	Sync     syncConfig.Config    `mapstructure:"sync"`
	Accounts []model.Account      `mapstructure:"accounts"`
}

func GetConfig() (Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetEnvPrefix("blingsync")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// env-only setups run without a config file
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	if err := normalizeAccounts(cfg.Accounts); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("handler.server_addr", ":3000")
	v.SetDefault("logger.log_level", "info")
	v.SetDefault("store.data_dir", "data")
	v.SetDefault("bling.api_base", "https://api.bling.com.br/Api/v3")
	v.SetDefault("bling.spacing", "5s")
	v.SetDefault("bling.cooldown", "5s")
	v.SetDefault("bling.max_retries", 3)
	v.SetDefault("bling.timezone_offset_minutes", -180)
	v.SetDefault("token.auth_url", "https://www.bling.com.br/Api/v3/oauth/authorize")
	v.SetDefault("token.token_url", "https://www.bling.com.br/Api/v3/oauth/token")
	v.SetDefault("sync.request_delay", "5s")
	v.SetDefault("sync.state_ttl", "24h")
	v.SetDefault("sync.state_max_items", 50000)
	v.SetDefault("sync.poll_interval", "0")
}

func normalizeAccounts(accounts []model.Account) error {
	seen := make(map[string]bool, len(accounts))
	for i := range accounts {
		acc := &accounts[i]
		if acc.ID == "" {
			acc.ID = fmt.Sprintf("account%d", i+1)
		}
		if seen[acc.ID] {
			return fmt.Errorf("duplicate account id %q", acc.ID)
		}
		seen[acc.ID] = true
		acc.Workflow.Normalize()
	}
	return nil
}
