// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/hashicorp/go-hclog"
)

// config is read from the environment.
type config struct {
	ClientID     string        `env:"OZWILLO_CLIENT_ID,required"`
	ClientSecret string        `env:"OZWILLO_CLIENT_SECRET"`
	Port         int           `env:"OZWILLO_PORT" envDefault:"8390"`
	LogLevel     string        `env:"OZWILLO_LOG_LEVEL" envDefault:"info"`
	Timeout      time.Duration `env:"OZWILLO_TIMEOUT" envDefault:"30s"`
	AttemptExp   time.Duration `env:"OZWILLO_ATTEMPT_EXP" envDefault:"2m"`

	// BaseURL selects the Ozwillo kernel. Issuer switches to OIDC discovery
	// of any provider instead.
	BaseURL string `env:"OZWILLO_BASE_URL"`
	Issuer  string `env:"OZWILLO_ISSUER"`
}

func loadConfig() (*config, error) {
	const op = "loadConfig"
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("%s: parse env: %w", op, err)
	}
	switch {
	case cfg.Port <= 0 || cfg.Port > 65535:
		return nil, fmt.Errorf("%s: OZWILLO_PORT %d is out of range", op, cfg.Port)
	case cfg.AttemptExp <= 0:
		return nil, fmt.Errorf("%s: OZWILLO_ATTEMPT_EXP must be positive", op)
	case hclog.LevelFromString(cfg.LogLevel) == hclog.NoLevel:
		return nil, fmt.Errorf("%s: OZWILLO_LOG_LEVEL %q is unknown", op, cfg.LogLevel)
	}
	return &cfg, nil
}

func (c *config) redirectURL() string {
	return fmt.Sprintf("http://localhost:%d/callback", c.Port)
}
