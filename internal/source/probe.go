package source

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/born-ml/graphlower/internal/onnx"
)

// Format identifies how a model is stored.
type Format int

// Supported source formats.
const (
	FormatUnknown Format = iota
	FormatBinary         // .onnx protobuf file
	FormatPackage        // directory with manifest.yaml
	FormatText           // YAML text graph
	FormatMemory         // iterator handed over by an embedding host
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatBinary:
		return "binary"
	case FormatPackage:
		return "package"
	case FormatText:
		return "text"
	case FormatMemory:
		return "memory"
	default:
		return "unknown"
	}
}

// ManifestFile is the name of the package manifest inside a model directory.
const ManifestFile = "manifest.yaml"

// DefaultSignature is the signature loaded when none is requested.
const DefaultSignature = "serve"

// Errors returned while opening models.
var (
	ErrUnknownFormat     = errors.New("unrecognized model format")
	ErrSignatureNotFound = errors.New("signature not found in package manifest")
	ErrUnknownTensor     = errors.New("signature references unknown tensor")
)

// Manifest describes a packaged model directory.
type Manifest struct {
	FormatVersion int                  `yaml:"format_version"`
	Signatures    map[string]Signature `yaml:"signatures"`
}

// Signature selects a model file and its interface inside a package.
type Signature struct {
	Model   string   `yaml:"model"`
	Inputs  []string `yaml:"inputs,omitempty"`
	Outputs []string `yaml:"outputs,omitempty"`
}

// Model is an opened source model.
type Model struct {
	Path      string
	Format    Format
	Signature string // Selected signature (package format only)
	Proto     *onnx.ModelProto
	Graph     GraphIterator
}

// IsBinary reports whether path is an .onnx file holding a graph.
func IsBinary(path string) bool {
	if !strings.EqualFold(filepath.Ext(path), ".onnx") {
		return false
	}
	m, err := onnx.ParseFile(path)
	return err == nil && m.Graph != nil
}

// IsPackage reports whether path is a directory with a readable manifest.
func IsPackage(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return false
	}
	_, err = ReadManifest(path)
	return err == nil
}

// IsText reports whether path is a file holding a YAML text graph.
func IsText(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	_, err = onnx.ParseTextFile(path)
	return err == nil
}

// Detect probes path and returns its format.
func Detect(path string) Format {
	switch {
	case IsBinary(path):
		return FormatBinary
	case IsPackage(path):
		return FormatPackage
	case IsText(path):
		return FormatText
	default:
		return FormatUnknown
	}
}

// ReadManifest reads the manifest of a packaged model directory.
func ReadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile)) //nolint:gosec // G304: Path is provided by user.
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if len(m.Signatures) == 0 {
		return nil, fmt.Errorf("manifest %s declares no signatures", filepath.Join(dir, ManifestFile))
	}
	return &m, nil
}

// Open detects the format of path and opens it. signature selects the
// package signature and is ignored for single-file formats; empty means
// DefaultSignature.
func Open(path, signature string) (*Model, error) {
	switch Detect(path) {
	case FormatBinary:
		proto, err := onnx.ParseFile(path)
		if err != nil {
			return nil, err
		}
		return newModel(path, FormatBinary, proto), nil
	case FormatText:
		proto, err := onnx.ParseTextFile(path)
		if err != nil {
			return nil, err
		}
		return newModel(path, FormatText, proto), nil
	case FormatPackage:
		return openPackage(path, signature)
	default:
		return nil, fmt.Errorf("%s: %w", path, ErrUnknownFormat)
	}
}

// FromIterator wraps an iterator supplied by an embedding host.
func FromIterator(it GraphIterator) *Model {
	return &Model{Format: FormatMemory, Graph: it}
}

func newModel(path string, format Format, proto *onnx.ModelProto) *Model {
	return &Model{
		Path:   path,
		Format: format,
		Proto:  proto,
		Graph:  FromGraph(proto.Graph),
	}
}

func openPackage(dir, signature string) (*Model, error) {
	manifest, err := ReadManifest(dir)
	if err != nil {
		return nil, err
	}
	if signature == "" {
		signature = DefaultSignature
	}
	sig, ok := manifest.Signatures[signature]
	if !ok {
		return nil, fmt.Errorf("%s: %q: %w", dir, signature, ErrSignatureNotFound)
	}

	modelPath := filepath.Join(dir, sig.Model)
	var proto *onnx.ModelProto
	if strings.EqualFold(filepath.Ext(modelPath), ".onnx") {
		proto, err = onnx.ParseFile(modelPath)
	} else {
		proto, err = onnx.ParseTextFile(modelPath)
	}
	if err != nil {
		return nil, fmt.Errorf("signature %q: %w", signature, err)
	}
	if proto.Graph == nil {
		return nil, fmt.Errorf("signature %q: %w", signature, onnx.ErrNoGraph)
	}

	m := newModel(dir, FormatPackage, proto)
	m.Signature = signature

	for _, name := range sig.Inputs {
		if !slices.Contains(m.Graph.Inputs(), name) {
			return nil, fmt.Errorf("signature %q: input %q: %w", signature, name, ErrUnknownTensor)
		}
	}
	m.Graph = Restrict(m.Graph, sig.Inputs, sig.Outputs)
	return m, nil
}
