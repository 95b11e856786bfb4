// Package ops provides the default translator set.
//
// It covers the structural operations every graph needs (graph inputs,
// initializers, no-op markers), common elementwise math and activations,
// shape manipulation, and the If and Loop control-flow operations whose
// branches are translated as nested graphs. Translators infer element types
// and static shapes where the inputs allow it and leave them dynamic
// otherwise.
package ops
