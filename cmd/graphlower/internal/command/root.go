package command

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/born-ml/graphlower/cmd/graphlower/internal/view"
	"github.com/born-ml/graphlower/internal/config"
)

// LogEnv overrides the configured log level.
const LogEnv = "GRAPHLOWER_LOG"

// RootOptions holds the global flags.
type RootOptions struct {
	ConfigPath string
	Output     string
	Debug      bool
}

// NewRootCommand builds the command tree writing to out (results) and
// errOut (logs).
func NewRootCommand(cli *CLI, errOut io.Writer) *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "graphlower",
		Short: "Translate source computation graphs into the target IR",
		Long: Highlight("Usage: graphlower [global options] <subcommand> [args]") + "\n\n" +
			"graphlower loads models stored as .onnx files, YAML text graphs or\n" +
			"packaged model directories and lowers them into the target graph IR.\n" +
			"Operations without a translator are kept as pending nodes when a\n" +
			"partial conversion is requested.\n",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return configure(cli, opts, errOut)
		},
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) == 0 {
				_ = cmd.Help()
			}
		},
	}

	cmd.CompletionOptions.DisableDefaultCmd = true
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "Path to a YAML configuration file")
	cmd.PersistentFlags().StringVarP(&opts.Output, "output", "o", "", "Output format. One of: (text | json | yaml)")
	cmd.PersistentFlags().BoolVar(&opts.Debug, "debug", false, "Set log level to debug")

	AddCommands(cmd, cli)
	setUsageTemplate(cmd)
	return cmd
}

// configure applies the configuration file, the environment and the global
// flags, in that order.
func configure(cli *CLI, opts *RootOptions, errOut io.Writer) error {
	cfg := config.Default()
	if opts.ConfigPath != "" {
		loaded, err := config.Load(opts.ConfigPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	if env, ok := os.LookupEnv(LogEnv); ok {
		cfg.Log.Level = strings.ToLower(env)
	}
	if opts.Debug {
		cfg.Log.Level = config.LevelDebug
	}
	if opts.Output != "" {
		cfg.Output = opts.Output
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, err := view.ParseLogLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	cli.Config = cfg
	cli.Logger = view.NewLogger(errOut, cfg.Log.JSON, level)
	return nil
}

func setUsageTemplate(cmd *cobra.Command) {
	cobra.AddTemplateFunc("StyleHeading", color.RGB(50, 108, 229).SprintFunc())
	usageTemplate := strings.NewReplacer(
		`Usage:`, `{{StyleHeading "Usage:"}}`,
		`Examples:`, `{{StyleHeading "Examples:"}}`,
		`Available Commands:`, `{{StyleHeading "Available Commands:"}}`,
		`Flags:`, `{{StyleHeading "Options:"}}`,
		`Global Flags:`, `{{StyleHeading "Global Options:"}}`,
	).Replace(cmd.UsageTemplate())
	cmd.SetUsageTemplate(usageTemplate)
	cmd.SetVersionTemplate("{{.Version}}\n")
}

// Execute runs the CLI against the process arguments and exits.
func Execute() {
	// Disable color output if NO_COLOR is set in the environment
	_, noColor := os.LookupEnv("NO_COLOR")
	color.NoColor = noColor

	cli := NewCLI(os.Stdout)
	root := NewRootCommand(cli, os.Stderr)

	if err := root.Execute(); err != nil {
		if msg := err.Error(); msg != "" {
			fmt.Fprintln(os.Stderr, color.RedString("Error:"), msg)
		}
		os.Exit(1)
	}
}

// AddCommands registers all subcommands to the root command.
func AddCommands(root *cobra.Command, cli *CLI) {
	root.AddCommand(
		NewConvertCommand(cli),
		NewInspectCommand(cli),
		NewOpsCommand(cli),
		NewPackCommand(cli),
		NewVersionCommand(cli),
	)
}
