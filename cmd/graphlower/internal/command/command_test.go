package command_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/graphlower/cmd/graphlower/internal/command"
	"github.com/born-ml/graphlower/internal/source"
)

const squareModel = `ir_version: 8
opset: 13
producer_name: test
graph:
  name: square
  inputs: [{name: x, dtype: float32, shape: [-1, 4]}]
  outputs: [{name: y}]
  nodes:
    - {name: sq, op_type: Mul, inputs: [x, x], outputs: [y]}
`

const customOpModel = `ir_version: 8
opset: 13
graph:
  name: custom
  inputs: [{name: x, dtype: float32, shape: [2]}]
  outputs: [{name: y}]
  nodes:
    - {name: c, op_type: MyCustomOp, inputs: [x], outputs: [y]}
`

func writeModel(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	color.NoColor = true
	var out, errOut bytes.Buffer
	cli := command.NewCLI(&out)
	root := command.NewRootCommand(cli, &errOut)
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(&errOut)
	err := root.Execute()
	return out.String(), err
}

func TestNewCLI(t *testing.T) {
	var buf bytes.Buffer
	cli := command.NewCLI(&buf)
	assert.NotNil(t, cli.Stream)
	assert.NotNil(t, cli.Config)
	assert.Equal(t, "text", cli.Config.Output)
}

func TestExactArgs(t *testing.T) {
	fn := command.ExactArgs(2)
	assert.NoError(t, fn(nil, []string{"a", "b"}))

	err := fn(nil, []string{"a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected 2 arguments, got 1")
}

func TestMinArgs(t *testing.T) {
	fn := command.MinArgs(1)
	assert.NoError(t, fn(nil, []string{"a", "b"}))
	assert.Error(t, fn(nil, nil))
}

func TestMaxArgs(t *testing.T) {
	fn := command.MaxArgs(1)
	assert.NoError(t, fn(nil, nil))

	err := fn(nil, []string{"a", "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected at most 1 arguments, got 2")
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version", "-o", "json")
	require.NoError(t, err)

	var info command.VersionInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, command.Version, info.Version)
}

func TestInvalidOutputFormat(t *testing.T) {
	_, err := run(t, "version", "-o", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "xml")
}

func TestOpsCommand(t *testing.T) {
	out, err := run(t, "ops")
	require.NoError(t, err)
	assert.Contains(t, out, "MatMul\n")
	assert.Contains(t, out, "If\n")
}

func TestConvertCommand(t *testing.T) {
	path := writeModel(t, "square.yaml", squareModel)

	out, err := run(t, "convert", path, "-o", "json")
	require.NoError(t, err)

	var results []command.ConvertResult
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 1)
	assert.Equal(t, command.StatusConverted, results[0].Status)
	assert.Zero(t, results[0].Pending)
	assert.Positive(t, results[0].Nodes)
}

func TestConvertCommand_Unsupported(t *testing.T) {
	path := writeModel(t, "custom.yaml", customOpModel)

	out, err := run(t, "convert", path, "-o", "json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 1 models failed")

	var results []command.ConvertResult
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 1)
	assert.Equal(t, command.StatusFailed, results[0].Status)
	assert.Equal(t, []string{"MyCustomOp"}, results[0].Unsupported)
	assert.Contains(t, results[0].Error, "No translator found for MyCustomOp node.")
}

func TestConvertCommand_PartialWithMetrics(t *testing.T) {
	path := writeModel(t, "custom.yaml", customOpModel)
	metrics := filepath.Join(t.TempDir(), "metrics.prom")

	out, err := run(t, "convert", path, "--partial", "--metrics-file", metrics)
	require.NoError(t, err)
	assert.Contains(t, out, "partial")
	assert.Contains(t, out, "no translator: MyCustomOp")

	// Partial conversion succeeds, so no error_cause events are emitted.
	data, err := os.ReadFile(metrics)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "onnx_MyCustomOp")
}

func TestConvertCommand_MetricsOnFailure(t *testing.T) {
	path := writeModel(t, "custom.yaml", customOpModel)
	metrics := filepath.Join(t.TempDir(), "metrics.prom")

	_, err := run(t, "convert", path, "--metrics-file", metrics)
	require.Error(t, err)

	data, err := os.ReadFile(metrics)
	require.NoError(t, err)
	assert.Contains(t, string(data), `graphlower_telemetry_events_total{category="error_cause",payload="onnx_MyCustomOp"} 1`)
}

func TestConvertCommand_RewriteRules(t *testing.T) {
	path := writeModel(t, "custom.yaml", customOpModel)
	cfg := writeModel(t, "config.yaml", `rewrite:
  - name: custom-is-relu
    match: node.op == "MyCustomOp"
    rename: Relu
`)

	out, err := run(t, "--config", cfg, "convert", path, "-o", "json")
	require.NoError(t, err)

	var results []command.ConvertResult
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 1)
	assert.Equal(t, command.StatusConverted, results[0].Status)
}

func TestConvertCommand_Decode(t *testing.T) {
	path := writeModel(t, "square.yaml", squareModel)

	out, err := run(t, "convert", "--decode", path, "-o", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "status: decoded")
	assert.Contains(t, out, "pending: 1")
}

func TestInspectCommand(t *testing.T) {
	path := writeModel(t, "square.yaml", squareModel)

	out, err := run(t, "inspect", path, "-o", "json")
	require.NoError(t, err)

	var info source.ModelInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, "text", info.Format)
	assert.Equal(t, int64(13), info.OpsetVersion)
	assert.Equal(t, []string{"x"}, info.InputNames)
	assert.Equal(t, []string{"Mul"}, info.OpTypes)
}

func TestPackCommand(t *testing.T) {
	src := writeModel(t, "square.yaml", squareModel)
	dir := t.TempDir()

	binary := filepath.Join(dir, "square.onnx")
	_, err := run(t, "pack", src, binary)
	require.NoError(t, err)
	assert.Equal(t, source.FormatBinary, source.Detect(binary))

	pkg := filepath.Join(dir, "pkg")
	_, err = run(t, "pack", binary, pkg, "--package")
	require.NoError(t, err)
	assert.Equal(t, source.FormatPackage, source.Detect(pkg))

	text := filepath.Join(dir, "roundtrip.yaml")
	_, err = run(t, "pack", pkg, text)
	require.NoError(t, err)

	m, err := source.Open(text, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"y"}, m.Graph.Outputs())
}
