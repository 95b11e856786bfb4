package command

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/born-ml/graphlower/internal/source"
)

// NewInspectCommand prints the metadata of a model without translating it.
func NewInspectCommand(cli *CLI) *cobra.Command {
	var signature string

	cmd := &cobra.Command{
		Use:   "inspect MODEL",
		Short: "Show model metadata",
		Long: Highlight("graphlower inspect MODEL") + "\n\n" +
			"Detect the model format and print its interface and operator set.\n",
		Args: ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("signature") {
				signature = cli.Config.Signature
			}
			m, err := source.Open(args[0], signature)
			if err != nil {
				return err
			}
			info := m.Info()
			cli.Logger.V(1).Info("Inspected model", "path", args[0], "format", info.Format)

			if handled, err := cli.Render(cli.Config.Output, info); handled {
				return err
			}
			printInfo(cli, info)
			return nil
		},
	}

	cmd.Flags().StringVar(&signature, "signature", "", "Signature to load from packaged models")
	return cmd
}

func printInfo(cli *CLI, info *source.ModelInfo) {
	row := func(key, value string) {
		cli.Printf("%s %s\n", Highlight("%-10s", key+":"), value)
	}
	row("Format", info.Format)
	if info.Signature != "" {
		row("Signature", info.Signature)
	}
	if info.ProducerName != "" {
		row("Producer", strings.TrimSpace(info.ProducerName+" "+info.ProducerVersion))
	}
	cli.Printf("%s %d (opset %d)\n", Highlight("%-10s", "IR:"), info.IRVersion, info.OpsetVersion)
	row("Inputs", strings.Join(info.InputNames, ", "))
	row("Outputs", strings.Join(info.OutputNames, ", "))
	cli.Printf("%s %d nodes, %d weights\n", Highlight("%-10s", "Size:"), info.NodeCount, info.WeightCount)
	row("Operators", strings.Join(info.OpTypes, ", "))
}
