package commands

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/livefir/blogpage/internal/config"
)

type InitCmd struct {
	flags *Flags
	force bool
}

// NewInitCmd creates a new init command
func NewInitCmd(flags *Flags) *InitCmd {
	return &InitCmd{flags: flags}
}

// Register adds the init command to the application
func (cmd *InitCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "init",
		Usage:     "Write a config file with the default settings",
		UsageText: "blogpage init [--force]",
		Description: `Writes the default configuration to the --config path (blogpage.yaml
unless set). Use --force to overwrite an existing file.`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "force",
				Aliases:     []string{"f"},
				Usage:       "overwrite existing configuration",
				Destination: &cmd.force,
			},
		},
		Action: cmd.run,
	})
	return app
}

func (cmd *InitCmd) run(ctx context.Context, c *cli.Command) error {
	return cmd.write(cmd.flags.ConfigPath)
}

func (cmd *InitCmd) write(path string) error {
	if path == "" {
		path = config.ConfigFileName
	}

	if !cmd.force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}

	if err := config.SaveConfig(config.DefaultConfig(), path); err != nil {
		return err
	}
	log.Info().Str("path", path).Msg("config written")
	return nil
}
