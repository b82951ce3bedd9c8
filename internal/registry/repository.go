package registry

import (
	"context"
	"fmt"
)

// Source supplies service descriptors at startup.
type Source interface {
	Load(ctx context.Context) ([]ServiceDescriptor, error)
}

// LoadInto registers every descriptor from sources, in order. The first
// load or registration error aborts.
func LoadInto(ctx context.Context, reg *Registry, sources ...Source) error {
	for _, src := range sources {
		list, err := src.Load(ctx)
		if err != nil {
			return invalid(fmt.Errorf("load service catalogue: %w", err))
		}
		for _, d := range list {
			if err := reg.Register(d); err != nil {
				return err
			}
		}
	}
	return nil
}
