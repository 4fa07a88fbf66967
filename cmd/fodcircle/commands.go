package main

import (
	"context"
	"fmt"
	"os"

	"github.com/phinze/fodcircle/internal/config"
	"github.com/phinze/fodcircle/internal/settings"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// CheckConfigCmd loads and validates the configuration.
type CheckConfigCmd struct{}

func (c *CheckConfigCmd) Run(cli *CLI) error {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(cfg)
}

// SettingsCmd reads and writes the overlay settings store.
type SettingsCmd struct {
	Get   SettingsGetCmd   `cmd:"" help:"Print a setting"`
	Set   SettingsSetCmd   `cmd:"" help:"Change a setting"`
	Unset SettingsUnsetCmd `cmd:"" help:"Remove a setting so its default applies"`
}

type SettingsGetCmd struct {
	Key string `arg:"" help:"Setting name, e.g. fod_anim"`
}

func (c *SettingsGetCmd) Run(cli *CLI) error {
	return withStore(cli, func(store *settings.SQLStore) error {
		fmt.Println(store.String(c.Key))
		return nil
	})
}

type SettingsSetCmd struct {
	Key   string `arg:"" help:"Setting name, e.g. fod_recognizing_animation"`
	Value string `arg:"" help:"New value"`
}

func (c *SettingsSetCmd) Run(cli *CLI) error {
	return withStore(cli, func(store *settings.SQLStore) error {
		return store.Put(context.Background(), c.Key, c.Value)
	})
}

type SettingsUnsetCmd struct {
	Key string `arg:"" help:"Setting name"`
}

func (c *SettingsUnsetCmd) Run(cli *CLI) error {
	return withStore(cli, func(store *settings.SQLStore) error {
		return store.Delete(context.Background(), c.Key)
	})
}

func withStore(cli *CLI, fn func(*settings.SQLStore) error) error {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}
	store, err := settings.Open(cfg.Settings.Path)
	if err != nil {
		return errors.Wrapf(err, "open settings %s", cfg.Settings.Path)
	}
	defer store.Close()
	return fn(store)
}
