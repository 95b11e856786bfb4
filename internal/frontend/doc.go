// Package frontend converts source models into target IR graphs.
//
// A FrontEnd owns the translator registry, the telemetry sink and the
// extensions added at runtime. Load opens a model; Convert translates it and
// fails on any unresolved operation, ConvertPartially returns whatever could
// be translated, and Decode only translates graph inputs and no-op markers so
// that graph-level transformations can run before real translation.
package frontend
