// Package source reads source computation graphs for translation.
//
// A model is opened from one of three on-disk encodings, told apart purely
// by probing:
//   - binary: an .onnx protobuf file
//   - package: a directory holding manifest.yaml, whose signatures select a
//     model file and restrict its inputs and outputs
//   - text: a YAML text graph (see onnx.ParseText)
//
// An embedding host may also hand over its own GraphIterator.
//
// A GraphIterator yields Decoders in topological order. Graph inputs and
// initializers are presented as synthetic Input and Constant nodes, so every
// value of the graph is produced by some node. Control-flow nodes expose their
// bodies through Decoder.Subgraph.
package source
