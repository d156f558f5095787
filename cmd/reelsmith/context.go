package main

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"reelsmith/internal/api"
	"reelsmith/internal/config"
)

type commandContext struct {
	configFlag *string
	apiFlag    *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag, apiFlag *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		apiFlag:    apiFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

func (c *commandContext) apiBind(cfg *config.Config) string {
	if c.apiFlag != nil {
		if flag := strings.TrimSpace(*c.apiFlag); flag != "" {
			return flag
		}
	}
	if cfg == nil {
		return ""
	}
	return cfg.Paths.APIBind
}

func (c *commandContext) withClient(fn func(*api.Client) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	bind := c.apiBind(cfg)
	client, err := api.NewClient(bind, cfg.Paths.APIToken)
	if err != nil {
		if errors.Is(err, api.ErrUnavailable) {
			return fmt.Errorf("paths.api_bind is empty; set it or pass --api")
		}
		return err
	}
	return wrapDialError(fn(client), bind)
}

// wrapDialError rewrites connection failures into start-the-daemon hints.
// API errors pass through untouched.
func wrapDialError(err error, bind string) error {
	if err == nil {
		return nil
	}
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		return err
	}
	var urlErr *url.Error
	var opErr *net.OpError
	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return fmt.Errorf("connect to daemon: %s refused the connection; start it with `reelsmith daemon`", bind)
	case errors.As(err, &opErr), errors.As(err, &urlErr):
		return fmt.Errorf("connect to daemon at %s: %w", bind, err)
	default:
		return err
	}
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
