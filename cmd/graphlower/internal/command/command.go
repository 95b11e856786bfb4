package command

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"github.com/born-ml/graphlower/cmd/graphlower/internal/view"
	"github.com/born-ml/graphlower/internal/config"
)

// CLI is the state shared by every subcommand. It is created before flags
// are parsed and reconfigured by the root command's PersistentPreRunE.
type CLI struct {
	*view.Stream
	Logger logr.Logger
	Config *config.Config
}

// NewCLI returns a CLI with the default configuration and a silent logger.
func NewCLI(w io.Writer) *CLI {
	return &CLI{
		Stream: view.NewStream(w),
		Logger: logr.Discard(),
		Config: config.Default(),
	}
}

// Highlight applies a blue color to the given format and arguments.
func Highlight(format string, a ...any) string {
	return color.RGB(50, 108, 229).Sprintf(format, a...)
}

// ExactArgs returns an error if there is not the exact number of args.
func ExactArgs(number int) cobra.PositionalArgs {
	return func(_ *cobra.Command, args []string) error {
		if len(args) == number {
			return nil
		}
		return fmt.Errorf("expected %d arguments, got %d", number, len(args))
	}
}

// MinArgs returns an error if there are fewer than the minimum number of args.
func MinArgs(number int) cobra.PositionalArgs {
	return func(_ *cobra.Command, args []string) error {
		if len(args) >= number {
			return nil
		}
		return fmt.Errorf("expected at least %d arguments, got %d", number, len(args))
	}
}

// MaxArgs returns an error if there are more than the max number of args.
func MaxArgs(number int) cobra.PositionalArgs {
	return func(_ *cobra.Command, args []string) error {
		if len(args) <= number {
			return nil
		}
		return fmt.Errorf("expected at most %d arguments, got %d", number, len(args))
	}
}
