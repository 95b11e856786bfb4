// Package translate lowers source graphs into the target IR.
//
// A Registry maps operation types to translators. A Session walks a
// source.GraphIterator in topological order and asks the registry for each
// node. Nodes that cannot be translated, because no translator is registered
// or because the translator failed, are kept in the graph as pending nodes so
// that the rest of the graph can still be built around them.
//
// Scan classifies the pending nodes left in a graph, and Resolve forces a
// pending node through a registry after graph-level rewrites have run.
package translate
