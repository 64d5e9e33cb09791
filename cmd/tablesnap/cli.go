package main

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/tablesnap/internal/errors"
	"github.com/hpungsan/tablesnap/internal/mcp"
	"github.com/hpungsan/tablesnap/internal/ops"
	"github.com/hpungsan/tablesnap/internal/render"
	"github.com/hpungsan/tablesnap/internal/web"
)

// cliState holds the environment commands run against. It is built in the
// app's Before hook unless one was injected.
type cliState struct {
	env     *ops.Env
	cleanup func()
}

// newCLIApp creates the CLI application with all commands. A nil env is
// set up from --base-dir before the command runs.
func newCLIApp(env *ops.Env) *cli.App {
	st := &cliState{env: env}
	app := &cli.App{
		Name:    "tablesnap",
		Usage:   "Snapshot database tables and diff them",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "base-dir", Value: defaultBaseDir(), Usage: "Directory holding config.json, history and captures", EnvVars: []string{"TABLESNAP_HOME"}},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"V"}, Usage: "Enable debug logging"},
		},
		Before: func(c *cli.Context) error {
			if st.env != nil || c.Args().First() == "help" {
				return nil
			}
			env, cleanup, err := setup(c.String("base-dir"), c.Bool("verbose"))
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			st.env, st.cleanup = env, cleanup
			return nil
		},
		After: func(_ *cli.Context) error {
			if st.cleanup != nil {
				st.cleanup()
			}
			return nil
		},
		Commands: []*cli.Command{
			snapshotCmd(st),
			compareCmd(st),
			watchCmd(st),
			capturesCmd(st),
			clearCmd(st),
			runsCmd(st),
			runCmd(st),
			purgeCmd(st),
			serveCmd(st),
			mcpCmd(st),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// snapshotCmd creates the snapshot command.
func snapshotCmd(st *cliState) *cli.Command {
	return &cli.Command{
		Name:  "snapshot",
		Usage: "Capture the source's tables under a label",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "label", Aliases: []string{"l"}, Value: "before", Usage: "Label to capture under (replaces its previous captures)"},
			&cli.StringFlag{Name: "tables", Aliases: []string{"t"}, Usage: "Comma-separated tables (default: config tables, then every table)"},
			&cli.BoolFlag{Name: "hashing", Usage: "Store row fingerprints instead of full rows"},
			&cli.BoolFlag{Name: "cursor", Usage: "Page through tables by key instead of one query"},
		},
		Action: func(c *cli.Context) error {
			input := ops.SnapshotInput{
				Label:   c.String("label"),
				Tables:  ops.SplitTables(c.String("tables")),
				Hashing: boolFlag(c, "hashing"),
				Cursor:  boolFlag(c, "cursor"),
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			output, err := ops.Snapshot(ctx, st.env, input)
			if err != nil {
				return outputError(err)
			}
			if err := outputJSON(c.App.Writer, output); err != nil {
				return err
			}
			if output.Failed > 0 {
				return cli.Exit(fmt.Sprintf("%d of %d tables failed", output.Failed, len(output.Tables)), 1)
			}
			return nil
		},
	}
}

// compareCmd creates the compare command.
func compareCmd(st *cliState) *cli.Command {
	return &cli.Command{
		Name:  "compare",
		Usage: "Diff two labels' captures and print the report",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "label", Aliases: []string{"l"}, Usage: "Label to compare (default: before)"},
			&cli.StringFlag{Name: "against", Aliases: []string{"a"}, Usage: "Counterpart label (default: after, or before when --label is another label)"},
			&cli.StringFlag{Name: "tables", Aliases: []string{"t"}, Usage: "Comma-separated tables (default: every table both labels captured)"},
			&cli.BoolFlag{Name: "hashing", Usage: "Compare row fingerprints instead of full rows"},
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: "text", Usage: "Report format: text|json|markdown|html"},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Write the report to a file instead of stdout"},
			&cli.BoolFlag{Name: "no-color", Usage: "Disable colour output"},
			&cli.BoolFlag{Name: "color", Usage: "Force colour output, also in --output files"},
			&cli.BoolFlag{Name: "no-truncate", Usage: "Print long values in full"},
			&cli.BoolFlag{Name: "no-record", Usage: "Do not record the run in history"},
		},
		Action: func(c *cli.Context) error {
			input := ops.CompareInput{
				Label:      c.String("label"),
				Against:    c.String("against"),
				Tables:     ops.SplitTables(c.String("tables")),
				Hashing:    boolFlag(c, "hashing"),
				Format:     c.String("format"),
				Output:     c.String("output"),
				Color:      useColor(c),
				ForceColor: c.Bool("color") && !c.Bool("no-color"),
				NoTruncate: c.Bool("no-truncate"),
				NoRecord:   c.Bool("no-record"),
			}

			output, err := ops.Compare(c.Context, st.env, input)
			if err != nil {
				return outputError(err)
			}
			printCompare(c.App.Writer, c.App.ErrWriter, output)
			return nil
		},
	}
}

// watchCmd creates the watch command.
func watchCmd(st *cliState) *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Re-capture a label on a schedule and compare it against a baseline",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "schedule", Aliases: []string{"s"}, Value: "@every 5m", Usage: "Cron expression or @every descriptor"},
			&cli.StringFlag{Name: "baseline", Aliases: []string{"b"}, Usage: "Baseline label (default: before)"},
			&cli.StringFlag{Name: "label", Aliases: []string{"l"}, Usage: "Label re-captured on every tick (default: after)"},
			&cli.StringFlag{Name: "tables", Aliases: []string{"t"}, Usage: "Comma-separated tables"},
			&cli.BoolFlag{Name: "hashing", Usage: "Capture and compare row fingerprints"},
			&cli.BoolFlag{Name: "once", Usage: "Run a single tick and exit"},
			&cli.BoolFlag{Name: "no-color", Usage: "Disable colour output"},
		},
		Action: func(c *cli.Context) error {
			w := c.App.Writer
			input := ops.WatchInput{
				Schedule: c.String("schedule"),
				Baseline: c.String("baseline"),
				Label:    c.String("label"),
				Tables:   ops.SplitTables(c.String("tables")),
				Hashing:  boolFlag(c, "hashing"),
				OnTick: func(out *ops.WatchTickOutput, err error) {
					if err != nil {
						fmt.Fprintf(c.App.ErrWriter, "error: %v\n", err)
						return
					}
					printCompare(w, c.App.ErrWriter, out.Compare)
				},
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			if c.Bool("once") {
				out, err := ops.WatchTick(ctx, st.env, input)
				if err != nil {
					return outputError(err)
				}
				printCompare(w, c.App.ErrWriter, out.Compare)
				return nil
			}

			if err := ops.Watch(ctx, st.env, input); err != nil {
				return outputError(err)
			}
			return nil
		},
	}
}

// capturesCmd creates the captures command.
func capturesCmd(st *cliState) *cli.Command {
	return &cli.Command{
		Name:  "captures",
		Usage: "List capture files on disk",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "label", Aliases: []string{"l"}, Usage: "Only list this label"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Captures(st.env, ops.CapturesInput{Label: c.String("label")})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, output)
		},
	}
}

// clearCmd creates the clear command.
func clearCmd(st *cliState) *cli.Command {
	return &cli.Command{
		Name:  "clear",
		Usage: "Delete a label's captures, or every capture",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "label", Aliases: []string{"l"}, Usage: "Label to clear"},
			&cli.BoolFlag{Name: "all", Usage: "Clear every label"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Clear(st.env, ops.ClearInput{
				Label: c.String("label"),
				All:   c.Bool("all"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, output)
		},
	}
}

// runsCmd creates the runs command.
func runsCmd(st *cliState) *cli.Command {
	return &cli.Command{
		Name:  "runs",
		Usage: "List recorded comparison runs, newest first",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "before", Usage: "Filter by before label"},
			&cli.StringFlag{Name: "after", Usage: "Filter by after label"},
			&cli.IntFlag{Name: "limit", Value: ops.DefaultListLimit, Usage: "Maximum items to return"},
			&cli.IntFlag{Name: "offset", Value: 0, Usage: "Items to skip"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Runs(st.env.DB, ops.RunsInput{
				Before: c.String("before"),
				After:  c.String("after"),
				Limit:  c.Int("limit"),
				Offset: c.Int("offset"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, output)
		},
	}
}

// runCmd creates the run command.
func runCmd(st *cliState) *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Re-render a recorded run's report",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: "text", Usage: "Report format: text|json|markdown|html"},
			&cli.BoolFlag{Name: "no-truncate", Usage: "Print long values in full"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return outputError(errors.NewInvalidRequest("run ID is required"))
			}
			output, err := ops.FetchRun(st.env.DB, ops.FetchRunInput{
				ID:         c.Args().First(),
				Format:     c.String("format"),
				NoTruncate: c.Bool("no-truncate"),
			})
			if err != nil {
				return outputError(err)
			}
			fmt.Fprint(c.App.Writer, output.Report)
			return nil
		},
	}
}

// purgeCmd creates the purge command.
func purgeCmd(st *cliState) *cli.Command {
	return &cli.Command{
		Name:  "purge",
		Usage: "Permanently delete recorded runs",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "older-than", Usage: "Only purge runs recorded more than N days ago (e.g., 7d)"},
		},
		Action: func(c *cli.Context) error {
			input := ops.PurgeInput{}
			if olderThan := c.String("older-than"); olderThan != "" {
				days, err := parseDuration(olderThan)
				if err != nil {
					return outputError(errors.NewInvalidRequest(err.Error()))
				}
				input.OlderThanDays = &days
			}

			output, err := ops.Purge(st.env.DB, input)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, output)
		},
	}
}

// serveCmd creates the serve command.
func serveCmd(st *cliState) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Browse run history and captures in a web UI",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Value: "127.0.0.1", Usage: "Address to bind"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Value: 8417, Usage: "Port to listen on"},
		},
		Action: func(c *cli.Context) error {
			port := c.Int("port")
			if port < 1 || port > 65535 {
				return outputError(errors.NewInvalidRequest("port must be between 1 and 65535"))
			}
			srv, err := web.NewServer(st.env, Version, c.String("bind"), port)
			if err != nil {
				return outputError(errors.NewInternal(err))
			}
			if err := web.Run(srv, st.env.Logger); err != nil {
				return outputError(errors.NewInternal(err))
			}
			return nil
		},
	}
}

// mcpCmd creates the mcp command.
func mcpCmd(st *cliState) *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve the MCP tools over stdio (the default when input is piped)",
		Action: func(_ *cli.Context) error {
			if err := runMCP(st.env); err != nil {
				return outputError(errors.NewInternal(err))
			}
			return nil
		},
	}
}

// Helper functions

// outputJSON marshals result to w as JSON.
func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	var tsErr *errors.TablesnapError
	if stderrors.As(err, &tsErr) {
		return cli.Exit(fmt.Sprintf("[%s] %s", tsErr.Code, tsErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// printCompare prints a comparison's inline report, or where it was written.
// Status lines go to errW so stdout stays parseable.
func printCompare(w, errW io.Writer, out *ops.CompareOutput) {
	if out == nil {
		return
	}
	if out.Output != "" {
		fmt.Fprintf(errW, "Report written to %s\n", out.Output)
	} else {
		fmt.Fprint(w, out.Report)
	}
	if out.RunID != "" {
		fmt.Fprintf(errW, "Run recorded: %s\n", out.RunID)
	}
}

// boolFlag returns a pointer to the flag's value when it was set, nil otherwise.
func boolFlag(c *cli.Context, name string) *bool {
	if !c.IsSet(name) {
		return nil
	}
	v := c.Bool(name)
	return &v
}

// runMCP warns about unknown disabled tools or types, then serves MCP over stdio.
func runMCP(env *ops.Env) error {
	if unknown := mcp.ValidateDisabledTools(env.Config.DisabledTools); len(unknown) > 0 {
		env.Logger.Warn("unknown tools in disabled_tools", "tools", unknown)
	}
	if unknown := mcp.ValidateDisabledTypes(env.Config.DisabledTypes); len(unknown) > 0 {
		env.Logger.Warn("unknown types in disabled_types", "types", unknown)
	}
	return mcp.Run(env, Version)
}

// useColor decides whether the inline report is coloured.
func useColor(c *cli.Context) bool {
	if c.Bool("no-color") || os.Getenv("NO_COLOR") != "" {
		return false
	}
	return c.Bool("color") || render.IsTerminal(os.Stdout)
}

// parseDuration parses "7d" format to days.
func parseDuration(s string) (int, error) {
	if numStr, ok := strings.CutSuffix(s, "d"); ok {
		days, err := strconv.Atoi(numStr)
		if err != nil {
			return 0, fmt.Errorf("invalid duration: %s", s)
		}
		if days < 0 {
			return 0, fmt.Errorf("duration must be non-negative")
		}
		return days, nil
	}
	return 0, fmt.Errorf("duration must end with 'd' (days), e.g., 7d")
}
