// Package passes holds whole-graph rewrites run after translation.
//
// Cleanup passes (Cleanup) only look at graph structure and are safe on
// graphs that still contain pending nodes. Layout passes (Layout) assume
// every node is a translated IR node.
package passes
