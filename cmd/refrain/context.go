package main

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/sydlexius/refrain/internal/config"
)

const defaultConfigPath = "/data/config.yaml"

type commandContext struct {
	configFlag *string
	serverFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag, serverFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag, serverFlag: serverFlag}
}

// configPath resolves the flag, then RF_CONFIG_PATH, then the default.
func (c *commandContext) configPath() string {
	if c.configFlag != nil {
		if p := strings.TrimSpace(*c.configFlag); p != "" {
			return p
		}
	}
	if p := os.Getenv("RF_CONFIG_PATH"); p != "" {
		return p
	}
	return defaultConfigPath
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, err := config.Load(c.configPath())
		if err != nil {
			c.configErr = fmt.Errorf("loading config: %w", err)
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// serverURL is the API base for commands that talk to a running server.
func (c *commandContext) serverURL() (string, error) {
	if c.serverFlag != nil {
		if s := strings.TrimSpace(*c.serverFlag); s != "" {
			return strings.TrimRight(s, "/"), nil
		}
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("http://localhost:%d%s", cfg.Server.Port, cfg.Server.BasePath), nil
}
