package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/born-ml/graphlower/internal/extension"
	"github.com/born-ml/graphlower/internal/frontend"
	"github.com/born-ml/graphlower/internal/ir"
	"github.com/born-ml/graphlower/internal/parallel"
	"github.com/born-ml/graphlower/internal/rewrite"
	"github.com/born-ml/graphlower/internal/telemetry"
	"github.com/born-ml/graphlower/internal/translate"
)

// Conversion statuses.
const (
	StatusConverted = "converted"
	StatusPartial   = "partial"
	StatusDecoded   = "decoded"
	StatusFailed    = "failed"
)

// ConvertOptions holds the options for the convert command.
type ConvertOptions struct {
	Partial     bool
	Decode      bool
	Signature   string
	Workers     int
	MetricsFile string
}

// ConvertResult describes the conversion of one model.
type ConvertResult struct {
	Model       string   `json:"model" yaml:"model"`
	Status      string   `json:"status" yaml:"status"`
	Nodes       int      `json:"nodes" yaml:"nodes"`
	Pending     int      `json:"pending" yaml:"pending"`
	Unsupported []string `json:"unsupported,omitempty" yaml:"unsupported,omitempty"`
	Error       string   `json:"error,omitempty" yaml:"error,omitempty"`
}

// NewConvertCommand converts one or more models.
func NewConvertCommand(cli *CLI) *cobra.Command {
	opts := &ConvertOptions{}

	cmd := &cobra.Command{
		Use:   "convert MODEL...",
		Short: "Convert models into the target IR",
		Long: Highlight("graphlower convert MODEL...") + "\n\n" +
			"Convert each model and report the outcome. A full conversion fails\n" +
			"on the first operation that cannot be translated; --partial keeps such\n" +
			"operations as pending nodes and --decode stops after decoding.\n",
		Args: MinArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := cli.Config
			if !cmd.Flags().Changed("partial") {
				opts.Partial = cfg.Partial
			}
			if !cmd.Flags().Changed("signature") {
				opts.Signature = cfg.Signature
			}
			if !cmd.Flags().Changed("workers") {
				opts.Workers = cfg.Workers
			}
			if !cmd.Flags().Changed("metrics-file") {
				opts.MetricsFile = cfg.Telemetry.MetricsFile
			}
			return runConvert(cmd.Context(), cli, opts, args)
		},
	}

	cmd.Flags().BoolVar(&opts.Partial, "partial", false, "Keep untranslatable operations as pending nodes")
	cmd.Flags().BoolVar(&opts.Decode, "decode", false, "Only decode the graph structure")
	cmd.Flags().StringVar(&opts.Signature, "signature", "", "Signature to load from packaged models")
	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "Number of models converted concurrently (0 = one per CPU)")
	cmd.Flags().StringVar(&opts.MetricsFile, "metrics-file", "", "Write telemetry counters to this file in Prometheus text format")
	return cmd
}

func runConvert(ctx context.Context, cli *CLI, opts *ConvertOptions, paths []string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var rules *rewrite.Rewriter
	if len(cli.Config.Rewrite) > 0 {
		r, err := rewrite.New(cli.Config.Rewrite, cli.Logger.WithName("rewrite"))
		if err != nil {
			return err
		}
		rules = r
	}

	var sink *telemetry.Async
	metrics := prometheus.NewRegistry()
	if cli.Config.Telemetry.Enabled || opts.MetricsFile != "" {
		counter, err := telemetry.NewPrometheusSink(metrics)
		if err != nil {
			return err
		}
		sink = telemetry.NewAsync(
			telemetry.Multi(counter, telemetry.NewLogSink(cli.Logger.WithName("telemetry"))),
			cli.Config.Telemetry.Buffer, cli.Logger)
	}

	results := make([]ConvertResult, len(paths))
	workers := parallel.DefaultConfig().WithWorkers(opts.Workers)
	err := parallel.For(ctx, len(paths), func(_ context.Context, i int) error {
		fe := frontend.New(frontend.WithLogger(cli.Logger.WithValues("model", paths[i])))
		if sink != nil {
			fe.AddExtension(extension.NewTelemetry(sink))
		}
		if rules != nil {
			fe.AddExtension(extension.NewTransformation(rules))
		}
		results[i] = convertOne(fe, paths[i], opts)
		return fe.Close()
	}, workers)
	if err != nil {
		return err
	}

	if sink != nil {
		_ = sink.Close()
		if n := sink.Dropped(); n > 0 {
			cli.Logger.Info("Dropped telemetry events", "count", n)
		}
		if opts.MetricsFile != "" {
			if err := prometheus.WriteToTextfile(opts.MetricsFile, metrics); err != nil {
				return fmt.Errorf("failed to write metrics: %w", err)
			}
		}
	}

	if handled, err := cli.Render(cli.Config.Output, results); handled {
		if err != nil {
			return err
		}
	} else {
		printResults(cli, results)
	}

	failed := 0
	for _, r := range results {
		if r.Status == StatusFailed {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d models failed to convert", failed, len(results))
	}
	return nil
}

func convertOne(fe *frontend.FrontEnd, path string, opts *ConvertOptions) ConvertResult {
	res := ConvertResult{Model: path}

	var (
		m   *frontend.InputModel
		g   *ir.Graph
		err error
	)
	if opts.Signature != "" {
		m, err = fe.Load(path, opts.Signature)
	} else {
		m, err = fe.Load(path)
	}
	if err == nil {
		switch {
		case opts.Decode:
			g, err = fe.Decode(m)
		case opts.Partial:
			g, err = fe.ConvertPartially(m)
		default:
			g, err = fe.Convert(m)
		}
	}
	if err != nil {
		res.Status = StatusFailed
		res.Error = err.Error()
		var ce *translate.ConversionError
		if errors.As(err, &ce) && errors.Is(err, translate.ErrUnsupportedOperation) && ce.OpType != "" {
			res.Unsupported = []string{ce.OpType}
		}
		return res
	}

	g.Walk(func(n *ir.Node) bool {
		res.Nodes++
		if n.IsPending() {
			res.Pending++
		}
		return true
	})
	res.Unsupported = translate.Scan(g).Unsupported

	switch {
	case opts.Decode:
		res.Status = StatusDecoded
	case res.Pending > 0:
		res.Status = StatusPartial
	default:
		res.Status = StatusConverted
	}
	return res
}

func printResults(cli *CLI, results []ConvertResult) {
	for _, r := range results {
		var status string
		switch r.Status {
		case StatusConverted, StatusDecoded:
			status = color.GreenString("%-9s", r.Status)
		case StatusPartial:
			status = color.YellowString("%-9s", r.Status)
		default:
			status = color.RedString("%-9s", r.Status)
		}

		if r.Status == StatusFailed {
			cli.Printf("%s %s\n%s\n", status, Highlight("%s", r.Model), r.Error)
			continue
		}
		cli.Printf("%s %s nodes=%d pending=%d\n", status, Highlight("%s", r.Model), r.Nodes, r.Pending)
		for _, op := range r.Unsupported {
			cli.Printf("  no translator: %s\n", op)
		}
	}
}
