package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// Source fetches the catalog from its system of record.
type Source interface {
	Fetch(ctx context.Context) (*Catalog, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (*Catalog, error)

// Fetch calls f.
func (f SourceFunc) Fetch(ctx context.Context) (*Catalog, error) { return f(ctx) }

// FileSource reads one JSON catalog document per build system and
// concatenates them in order.
type FileSource struct {
	Paths []string
}

// Fetch implements Source.
func (s FileSource) Fetch(ctx context.Context) (*Catalog, error) {
	if len(s.Paths) == 0 {
		return nil, fmt.Errorf("catalog: file source has no paths")
	}
	out := &Catalog{}
	for _, p := range s.Paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("catalog: read %s: %w", p, err)
		}
		var part Catalog
		if err := json.Unmarshal(data, &part); err != nil {
			return nil, fmt.Errorf("catalog: parse %s: %w", p, err)
		}
		out.append(&part)
	}
	return out, nil
}

func (c *Catalog) append(o *Catalog) {
	c.BuildSystems = append(c.BuildSystems, o.BuildSystems...)
	c.HouseTypes = append(c.HouseTypes, o.HouseTypes...)
	c.Modules = append(c.Modules, o.Modules...)
	c.Materials = append(c.Materials, o.Materials...)
	c.Elements = append(c.Elements, o.Elements...)
	c.WindowTypes = append(c.WindowTypes, o.WindowTypes...)
	c.InternalLayoutTypes = append(c.InternalLayoutTypes, o.InternalLayoutTypes...)
	c.EnergyInfo = append(c.EnergyInfo, o.EnergyInfo...)
}
