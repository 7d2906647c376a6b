// Package geometry turns a module's scene graph into one merged mesh per
// catalog element and keeps the result for the life of the process.
//
// MergeModule resolves every top-level scene label to an element (fuzzy,
// excluding appliances), collects the mesh primitives beneath it and merges
// them per element. Cache memoizes MergeModule per module DNA: the first
// request for a module, whether for one element or all of them, computes
// and stores the whole module, and every later request reads the stored
// mapping. Entries are never evicted or replaced.
package geometry
