package command

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/born-ml/graphlower/internal/onnx"
	"github.com/born-ml/graphlower/internal/source"
)

// PackOptions holds the options for the pack command.
type PackOptions struct {
	Signature string
	Package   bool
}

var errNoProto = errors.New("model has no protobuf representation")

// NewPackCommand re-encodes a model in another on-disk format.
func NewPackCommand(cli *CLI) *cobra.Command {
	opts := &PackOptions{}

	cmd := &cobra.Command{
		Use:   "pack SRC DST",
		Short: "Re-encode a model",
		Long: Highlight("graphlower pack SRC DST") + "\n\n" +
			"Read SRC in any supported format and write it to DST. A DST ending\n" +
			"in .onnx is written as protobuf, anything else as a YAML text graph.\n" +
			"With --package DST is a directory holding the model and a manifest.\n",
		Args: ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			m, err := source.Open(args[0], opts.Signature)
			if err != nil {
				return err
			}
			if m.Proto == nil {
				return fmt.Errorf("%s: %w", args[0], errNoProto)
			}
			if opts.Package {
				err = writePackage(args[1], m)
			} else {
				err = writeModel(args[1], m.Proto)
			}
			if err != nil {
				return err
			}
			cli.Logger.Info("Packed model", "src", args[0], "dst", args[1], "format", m.Format.String())
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Signature, "signature", "", "Signature to read from a packaged SRC")
	cmd.Flags().BoolVar(&opts.Package, "package", false, "Write DST as a packaged model directory")
	return cmd
}

func writeModel(path string, proto *onnx.ModelProto) error {
	if strings.EqualFold(filepath.Ext(path), ".onnx") {
		return onnx.WriteFile(path, proto)
	}
	data, err := onnx.MarshalText(proto)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

func writePackage(dir string, m *source.Model) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create package: %w", err)
	}
	const modelFile = "model.onnx"
	if err := onnx.WriteFile(filepath.Join(dir, modelFile), m.Proto); err != nil {
		return err
	}

	sig := source.Signature{Model: modelFile}
	if m.Format == source.FormatPackage {
		sig.Inputs = m.Graph.Inputs()
		sig.Outputs = m.Graph.Outputs()
	}
	manifest := source.Manifest{
		FormatVersion: 1,
		Signatures:    map[string]source.Signature{source.DefaultSignature: sig},
	}
	data, err := yaml.Marshal(&manifest)
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, source.ManifestFile), data, 0o600); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}
