package main

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"github.com/yuin/goldmark"

	"github.com/hpungsan/stickerjar/internal/errors"
	"github.com/hpungsan/stickerjar/internal/jar"
	"github.com/hpungsan/stickerjar/internal/mcp"
	"github.com/hpungsan/stickerjar/internal/ops"
	"github.com/hpungsan/stickerjar/internal/physics"
	"github.com/hpungsan/stickerjar/internal/web"
)

// maxImageBytes bounds an image read from a file or stdin.
const maxImageBytes = 20 << 20

// newCLIApp creates the CLI application with all commands. env may be nil
// for --help and --version.
func newCLIApp(env *appEnv) *cli.App {
	app := &cli.App{
		Name:    "stickerjar",
		Usage:   "A jar for your food stickers",
		Version: Version,
		Commands: []*cli.Command{
			addCmd(env),
			listCmd(env),
			showCmd(env),
			foregroundCmd(env),
			archiveCmd(env),
			jarsCmd(env),
			jarCmd(env),
			simulateCmd(env),
			serveCmd(env),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// addCmd creates the add command.
func addCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "add",
		Usage:     "Add a sticker to the jar (image path, or - for stdin)",
		ArgsUsage: "<image>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "original", Aliases: []string{"o"}, Usage: "Path to the original photo"},
			&cli.BoolFlag{Name: "special", Aliases: []string{"s"}, Usage: "Force the special flag (default: configured roll)"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return outputError(errors.NewInvalidRequest("image path is required"))
			}

			image, err := readImage(c.Args().First())
			if err != nil {
				return outputError(err)
			}
			if len(image) == 0 {
				return outputError(errors.NewInvalidRequest("image is empty"))
			}

			input := jar.CreateInput{Image: image}
			if path := c.String("original"); path != "" {
				if input.Original, err = readImage(path); err != nil {
					return outputError(err)
				}
			}
			if c.IsSet("special") {
				special := c.Bool("special")
				input.IsSpecial = &special
			}

			result, err := env.jar.CreateSticker(c.Context, input)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(result)
		},
	}
}

// listCmd creates the list command.
func listCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List stickers in the live jar",
		Flags: pageFlags(),
		Action: func(c *cli.Context) error {
			output, err := ops.ListStickers(c.Context, env.store, ops.ListInput{
				Limit:  c.Int("limit"),
				Offset: c.Int("offset"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// showCmd creates the show command.
func showCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Show one sticker",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "no-text", Usage: "Omit fun fact and nutrition"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return outputError(errors.NewInvalidRequest("sticker id is required"))
			}
			includeText := !c.Bool("no-text")
			output, err := ops.FetchSticker(c.Context, env.store, ops.FetchStickerInput{
				ID:          c.Args().First(),
				IncludeText: &includeText,
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// foregroundCmd creates the foreground command.
func foregroundCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "foreground",
		Usage: "Run the archive check an app foreground would run",
		Action: func(c *cli.Context) error {
			rec, err := env.jar.Foreground(c.Context)
			if err != nil {
				return outputError(err)
			}
			output := mcp.JarCheckOutput{Status: ops.Status(env.jar)}
			if rec != nil {
				summary := rec.ToSummary()
				output.Archived = &summary
			}
			return outputJSON(output)
		},
	}
}

// archiveCmd creates the archive command.
func archiveCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "archive",
		Usage: "Archive the live jar now",
		Action: func(c *cli.Context) error {
			rec, err := env.jar.Archive(c.Context)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(mcp.JarArchiveOutput{
				JarSummary: rec.ToSummary(),
				Report:     rec.Report,
			})
		},
	}
}

// jarsCmd creates the jars command.
func jarsCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "jars",
		Usage: "List archived jars, newest first",
		Flags: pageFlags(),
		Action: func(c *cli.Context) error {
			output, err := ops.ListJars(c.Context, env.store, ops.ListInput{
				Limit:  c.Int("limit"),
				Offset: c.Int("offset"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// jarCmd creates the jar command.
func jarCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "jar",
		Usage:     "Show one archived jar",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "no-stickers", Usage: "Omit the archived sticker list"},
			&cli.BoolFlag{Name: "html", Usage: "Print the report rendered as HTML"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return outputError(errors.NewInvalidRequest("jar id is required"))
			}
			includeStickers := !c.Bool("no-stickers")
			output, err := ops.FetchJar(c.Context, env.store, ops.FetchJarInput{
				ID:              c.Args().First(),
				IncludeStickers: &includeStickers,
			})
			if err != nil {
				return outputError(err)
			}

			if c.Bool("html") {
				if output.Report == nil {
					return outputError(errors.NewNotFound("report", output.ID))
				}
				html, err := markdownToHTML(*output.Report)
				if err != nil {
					return outputError(errors.NewInternal(err))
				}
				_, err = io.WriteString(os.Stdout, html)
				return err
			}
			return outputJSON(output)
		},
	}
}

// simulateCmd creates the simulate command.
func simulateCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "simulate",
		Usage: "Step the physics world and print the body layout",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "ticks", Aliases: []string{"n"}, Value: 2 * jar.TickRate, Usage: "Number of steps at the tick rate"},
			&cli.Float64Flag{Name: "tilt-x", Usage: "Device tilt x (g)"},
			&cli.Float64Flag{Name: "tilt-y", Value: 1, Usage: "Device tilt y (g)"},
		},
		Action: func(c *cli.Context) error {
			ticks := c.Int("ticks")
			if ticks < 0 {
				return outputError(errors.NewInvalidRequest("ticks must be non-negative"))
			}
			env.jar.Tilt(c.Float64("tilt-x"), c.Float64("tilt-y"))
			for range ticks {
				env.jar.Tick(1.0 / jar.TickRate)
			}

			output := mcp.JarBodiesOutput{Bodies: env.jar.Bodies()}
			if b, ok := env.jar.World().Boundary(); ok {
				output.Width, output.Height, output.Drop = b.Width, b.Height, b.Drop
			}
			if output.Bodies == nil {
				output.Bodies = []physics.BodyState{}
			}
			return outputJSON(output)
		},
	}
}

// serveCmd creates the serve command.
func serveCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the jar with its web UI and scheduled archive checks",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Value: "127.0.0.1", Usage: "Address to bind"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Value: 8080, Usage: "Port to listen on"},
		},
		Action: func(c *cli.Context) error {
			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			stopSchedule, err := env.jar.Engine().Schedule(ctx, env.cfg.ArchiveCheckSchedule)
			if err != nil {
				return outputError(err)
			}
			defer stopSchedule()

			go func() {
				if err := env.jar.Run(ctx); err != nil && !stderrors.Is(err, context.Canceled) {
					env.log.WithError(err).Error("physics loop stopped")
				}
			}()

			// Catch up on a trigger that came due while nothing was running.
			if _, err := env.jar.Foreground(ctx); err != nil {
				env.log.WithError(err).Warn("startup archive check failed")
			}

			srv := web.NewServer(web.Deps{
				Jar:     env.jar,
				Store:   env.store,
				Blobs:   env.blobs,
				Metrics: env.metrics,
				Logger:  env.log,
			}, Version, c.String("bind"), c.Int("port"))
			if err := web.Run(ctx, srv, env.log); err != nil {
				return outputError(errors.NewInternal(err))
			}
			return nil
		},
	}
}

// Helper functions

func pageFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultListLimit, Usage: "Max items to return"},
		&cli.IntFlag{Name: "offset", Usage: "Items to skip"},
	}
}

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	var jarErr *errors.JarError
	if stderrors.As(err, &jarErr) {
		return cli.Exit(fmt.Sprintf("[%s] %s", jarErr.Code, jarErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readImage reads an image from path, or from stdin when path is "-".
func readImage(path string) ([]byte, error) {
	if path == "-" {
		if !stdinHasData() {
			return nil, errors.NewInvalidRequest("image must be piped via stdin")
		}
		return readLimited(os.Stdin, maxImageBytes)
	}
	f, err := os.Open(path)
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return nil, errors.NewNotFound("image", path)
		}
		return nil, errors.NewInternal(err)
	}
	defer f.Close()
	return readLimited(f, maxImageBytes)
}

// readLimited reads all of r, failing when it holds more than limit bytes.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	if int64(len(data)) > limit {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("image exceeds %d bytes", limit))
	}
	return data, nil
}

// markdownToHTML renders a report with goldmark.
func markdownToHTML(md string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
