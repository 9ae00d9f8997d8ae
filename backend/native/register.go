package native

import (
	"github.com/SJTU-IPADS/Spars-artifacts/backend"
	"github.com/SJTU-IPADS/Spars-artifacts/render"
)

func init() {
	backend.Register(backend.BackendNative, func(provider render.DeviceHandle) (*backend.Backend, error) {
		if provider == nil {
			return nil, ErrNotHAL
		}
		a, err := NewFromProvider(provider)
		if err != nil {
			return nil, err
		}
		rec := a.NewRecorder()
		return backend.New(backend.BackendNative, a, rec, func() {
			rec.Close()
			a.Close()
		}), nil
	})
}
