package main

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"loopdeck/internal/config"
	"loopdeck/internal/daemonctl"
	"loopdeck/internal/queue"
	"loopdeck/internal/queueaccess"
)

// commandContext carries persistent flag values and the lazily loaded
// configuration shared by every subcommand.
type commandContext struct {
	flags struct {
		config   string
		operator string
	}

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(c.configPath())
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

func (c *commandContext) configPath() string {
	return strings.TrimSpace(c.flags.config)
}

func (c *commandContext) operator() string {
	return strings.TrimSpace(c.flags.operator)
}

func (c *commandContext) client() (*daemonctl.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return daemonctl.NewClient(cfg, c.operator())
}

// withClient runs fn against a reachable daemon.
func (c *commandContext) withClient(cmd *cobra.Command, fn func(*daemonctl.Client) error) error {
	client, err := c.client()
	if err != nil {
		return wrapDialError(err)
	}
	if err := client.Health(cmd.Context()); err != nil {
		return wrapDialError(err)
	}
	return wrapDialError(fn(client))
}

// withQueue runs fn against the daemon when it answers and against the
// queue database otherwise.
func (c *commandContext) withQueue(cmd *cobra.Command, fn func(queueaccess.Session) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	session, err := queueaccess.Open(cmd.Context(), queueaccess.Openers{
		Daemon: func(context.Context) (*daemonctl.Client, error) { return c.client() },
		Store:  func() (*queue.Store, error) { return queue.Open(cfg) },
	})
	if err != nil {
		return err
	}
	defer session.Close()
	return fn(session)
}

func wrapDialError(err error) error {
	if err == nil {
		return nil
	}
	if daemonctl.IsUnavailable(err) {
		return fmt.Errorf("connect to daemon: %w; start it with `loopdeck daemon start`", err)
	}
	return err
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}

func valueOrDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}
