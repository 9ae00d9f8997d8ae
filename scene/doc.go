// Package scene defines the scene tree consumed by the batcher: nodes with
// relative and absolute positions, the closed set of draw commands
// attached to them, per-frame animations and a YAML scene loader.
package scene
