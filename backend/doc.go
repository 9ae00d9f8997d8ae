// Package backend selects the device and recorder a frame engine runs on.
//
// Backends are registered via init() functions and selected at runtime.
// The null backend is always registered; it creates no GPU objects and
// records frames into a render.CommandStream. The native backend registers
// itself when its package is imported:
//
//	import _ "github.com/SJTU-IPADS/Spars-artifacts/backend/native"
//
// # Backend Selection
//
// Use Default to open the best backend that accepts the host's device
// provider, or Open to request one by name:
//
//	b, err := backend.Default(provider)
//	if err != nil {
//		return err
//	}
//	defer b.Close()
//
//	b, err = backend.Open(backend.BackendNull, nil)
package backend
