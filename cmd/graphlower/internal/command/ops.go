package command

import (
	"github.com/spf13/cobra"

	"github.com/born-ml/graphlower/internal/ops"
)

// NewOpsCommand lists the operation types with a built-in translator.
func NewOpsCommand(cli *CLI) *cobra.Command {
	return &cobra.Command{
		Use:   "ops",
		Short: "List supported operation types",
		Args:  ExactArgs(0),
		RunE: func(_ *cobra.Command, _ []string) error {
			supported := ops.NewRegistry().SupportedOps()
			if handled, err := cli.Render(cli.Config.Output, supported); handled {
				return err
			}
			for _, op := range supported {
				cli.Println(op)
			}
			return nil
		},
	}
}
