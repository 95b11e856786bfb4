// Package ir implements the target intermediate representation produced by
// graph translation.
//
// A Graph is a set of nodes connected through typed output ports. Edges are
// kept in both directions (consumer inputs and producer consumer lists) so
// that outputs can be replaced in place while the graph stays topologically
// consistent. Composite nodes own nested bodies, forming a tree of graphs.
//
// Placeholder nodes (type Pending) stand in for source nodes that were not
// translated; they carry the source decoder and the failure annotation, if
// any, of a failed translation attempt.
package ir
