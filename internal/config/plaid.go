package config

import (
	"github.com/Veraticus/dispute-triage/internal/plaid"
	"github.com/spf13/viper"
)

// LoadPlaidConfig reads Plaid credentials from the "plaid" config key.
func LoadPlaidConfig() (*plaid.Config, error) {
	cfg := &plaid.Config{
		ClientID:    viper.GetString("plaid.client_id"),
		Secret:      viper.GetString("plaid.secret"),
		Environment: viper.GetString("plaid.environment"),
		AccessToken: viper.GetString("plaid.access_token"),
	}
	if cfg.Environment == "" {
		cfg.Environment = "sandbox"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
