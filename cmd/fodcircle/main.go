package main

import (
	"github.com/alecthomas/kong"
	"github.com/michaelquigley/pfxlog"
	"github.com/sirupsen/logrus"
)

// CLI is the fodcircle command line.
type CLI struct {
	Config  string `short:"c" help:"Configuration file path" type:"path"`
	Verbose bool   `short:"v" help:"Enable debug logging"`

	Run         RunCmd         `cmd:"" default:"1" help:"Run the sensor overlay"`
	CheckConfig CheckConfigCmd `cmd:"" help:"Validate the configuration and print the effective values"`
	Settings    SettingsCmd    `cmd:"" help:"Read or change overlay settings"`
}

// AfterApply sets up logging once flags are parsed.
func (c *CLI) AfterApply() error {
	level := logrus.InfoLevel
	if c.Verbose {
		level = logrus.DebugLevel
	}
	pfxlog.GlobalInit(level, pfxlog.DefaultOptions().SetTrimPrefix("github.com/phinze/"))
	return nil
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("fodcircle"),
		kong.Description("Fingerprint-on-display overlay coordinator"),
		kong.UsageOnError(),
	)
	ctx.FatalIfErrorf(ctx.Run(&cli))
}
