package commands

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/livefir/blogpage"
	"github.com/livefir/blogpage/internal/dom"
	"github.com/livefir/blogpage/internal/fixture"
	"github.com/livefir/blogpage/internal/query"
)

type RenderCmd struct {
	flags *Flags

	// flags
	actions []string
	origin  string
}

// NewRenderCmd creates a new render command
func NewRenderCmd(flags *Flags) *RenderCmd {
	return &RenderCmd{flags: flags}
}

// Register adds the render command to the application
func (cmd *RenderCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "render",
		Usage:     "Render a page and replay actions against it",
		UsageText: "blogpage render [--action kind:arg]... <path>",
		Description: `Renders the page at path, applies each action in order and prints the
resulting HTML. Patches and redirects are reported on stderr; a redirect
ends the replay.

Actions use the same "kind:arg" form as no-script posts:

  blogpage render --action reply:reply-comment-5 /posts/42/view
  blogpage render --action paginate:20 "/posts?page=3"`,
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:        "action",
				Aliases:     []string{"a"},
				Usage:       "action to apply, repeatable",
				Destination: &cmd.actions,
			},
			&cli.StringFlag{
				Name:        "origin",
				Usage:       "origin used for redirects",
				Value:       "http://localhost:8080",
				Destination: &cmd.origin,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *RenderCmd) run(ctx context.Context, c *cli.Command) error {
	if c.Args().Len() != 1 {
		return fmt.Errorf("expected one page path, got %d", c.Args().Len())
	}

	blog, err := loadBlog(*cmd.flags.config())
	if err != nil {
		return err
	}
	site, err := fixture.NewSite(blog, log.Logger)
	if err != nil {
		return err
	}

	return cmd.render(os.Stdout, os.Stderr, site, c.Args().First())
}

func (cmd *RenderCmd) render(stdout, stderr io.Writer, renderer blogpage.Renderer, href string) error {
	loc, err := query.ParseLocation(href)
	if err != nil {
		return err
	}
	if loc.Origin == "" {
		loc.Origin = cmd.origin
	}

	var buf bytes.Buffer
	if err := renderer.Render(&buf, loc); err != nil {
		return fmt.Errorf("render %s: %w", loc.Key(), err)
	}
	doc, err := dom.Parse(&buf)
	if err != nil {
		return err
	}

	page := blogpage.NewPage(loc, doc, nil, validator.New(validator.WithRequiredStructEnabled()), log.Logger)

	for _, value := range cmd.actions {
		action, err := blogpage.ParseActionValue(value)
		if err != nil {
			return err
		}

		update, err := page.Dispatch(action)
		if err != nil {
			return fmt.Errorf("action %q: %w", value, err)
		}

		for _, p := range update.Patches {
			fmt.Fprintf(stderr, "%s: %s\n", action.Action, p)
		}
		if update.Missed > 0 {
			fmt.Fprintf(stderr, "%s: %d patch(es) missed their target\n", action.Action, update.Missed)
		}
		if update.Redirect != "" {
			fmt.Fprintf(stderr, "%s: redirect %s\n", action.Action, update.Redirect)
			return nil
		}
	}

	return page.Document().Render(stdout)
}
