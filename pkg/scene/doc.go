// Package scene defines the scene-graph node tree produced by the asset
// pipeline for a module variant: a label-keyed mapping of top-level nodes,
// each the root of a tree whose leaves are renderable mesh primitives.
//
// Labels are authored by the 3D export (typically IFC entity names such as
// "IfcWindow" or "IfcWallStandardCase") and are not guaranteed to match the
// systems catalog exactly. Graphs are read-only once built.
package scene
