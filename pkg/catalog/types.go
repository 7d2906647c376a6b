// Package catalog holds the Building Systems catalog (elements, materials,
// modules, house types and friends) and the session cache that loads it
// once, from a fresh local snapshot when one exists or from its source.
package catalog

import "strings"

// DefaultMaterialName is the material used when an element names none.
const DefaultMaterialName = "Plywood"

// BuildSystem identifies one catalog base the data was assembled from.
type BuildSystem struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	AirtableID string `json:"airtableId"`
}

// Element is a named category of building part. IFC4Variable is the
// cross-reference matched against scene-graph node labels.
type Element struct {
	ID              string   `json:"id"`
	SystemID        string   `json:"systemId"`
	Name            string   `json:"name"`
	IFC4Variable    string   `json:"ifc4Variable"`
	DefaultMaterial string   `json:"defaultMaterial"`
	MaterialOptions []string `json:"materialOptions,omitempty"`
}

// Material is a finish that can be applied to an element.
type Material struct {
	ID               string  `json:"id"`
	SystemID         string  `json:"systemId"`
	Name             string  `json:"name"`
	SpecificationURL string  `json:"specificationUrl,omitempty"`
	DefaultColor     string  `json:"defaultColor,omitempty"` // "#rrggbb"
	TextureURL       string  `json:"textureUrl,omitempty"`
	UnitCost         float64 `json:"unitCost,omitempty"`
}

// Module is one prefabricated module variant, identified by its DNA string.
type Module struct {
	ID       string  `json:"id"`
	SystemID string  `json:"systemId"`
	DNA      string  `json:"dna"`
	GLTFURL  string  `json:"gltfUrl"`
	IFCURL   string  `json:"ifcUrl,omitempty"`
	Length   float64 `json:"length,omitempty"`
	Height   float64 `json:"height,omitempty"`
}

// HouseType is a named arrangement of modules, listed by DNA.
type HouseType struct {
	ID       string   `json:"id"`
	SystemID string   `json:"systemId"`
	Name     string   `json:"name"`
	DNA      []string `json:"dna"`
	ImageURL string   `json:"imageUrl,omitempty"`
}

// WindowType is a window option for module openings.
type WindowType struct {
	ID       string `json:"id"`
	SystemID string `json:"systemId"`
	Code     string `json:"code"`
	Name     string `json:"name,omitempty"`
	GLBURL   string `json:"glbUrl,omitempty"`
}

// InternalLayoutType is an interior layout option.
type InternalLayoutType struct {
	ID       string `json:"id"`
	SystemID string `json:"systemId"`
	Code     string `json:"code"`
	GLBURL   string `json:"glbUrl,omitempty"`
}

// EnergyInfo carries per-system energy performance figures.
type EnergyInfo struct {
	SystemID          string  `json:"systemId"`
	HeatingDemand     float64 `json:"heatingDemand,omitempty"`
	OperationalCO2    float64 `json:"operationalCo2,omitempty"`
	GlazingUValue     float64 `json:"glazingUValue,omitempty"`
	WallUValue        float64 `json:"wallUValue,omitempty"`
	AirTightness      float64 `json:"airTightness,omitempty"`
	ElectricityTariff float64 `json:"electricityTariff,omitempty"`
}

// Catalog is the full systems data for a session. It is treated as
// immutable once loaded.
type Catalog struct {
	BuildSystems        []BuildSystem        `json:"buildSystems"`
	HouseTypes          []HouseType          `json:"houseTypes"`
	Modules             []Module             `json:"modules"`
	Materials           []Material           `json:"materials"`
	Elements            []Element            `json:"elements"`
	WindowTypes         []WindowType         `json:"windowTypes"`
	InternalLayoutTypes []InternalLayoutType `json:"internalLayoutTypes"`
	EnergyInfo          []EnergyInfo         `json:"energyInfo"`

	render map[string]RenderMaterial
}

// Module returns the module with the given DNA.
func (c *Catalog) Module(dna string) (Module, bool) {
	for _, m := range c.Modules {
		if m.DNA == dna {
			return m, true
		}
	}
	return Module{}, false
}

// HouseType returns the house type with the given ID.
func (c *Catalog) HouseType(id string) (HouseType, bool) {
	for _, h := range c.HouseTypes {
		if h.ID == id {
			return h, true
		}
	}
	return HouseType{}, false
}

// Element returns the first element with the given name.
func (c *Catalog) Element(name string) (Element, bool) {
	for _, e := range c.Elements {
		if e.Name == name {
			return e, true
		}
	}
	return Element{}, false
}

// Material returns the material with the given name.
func (c *Catalog) Material(name string) (Material, bool) {
	for _, m := range c.Materials {
		if m.Name == name {
			return m, true
		}
	}
	return Material{}, false
}

// dropEmptyHouseTypes removes house types with no modules.
func (c *Catalog) dropEmptyHouseTypes() {
	kept := c.HouseTypes[:0]
	for _, h := range c.HouseTypes {
		if len(h.DNA) > 0 {
			kept = append(kept, h)
		}
	}
	c.HouseTypes = kept
}

// validate reports the first structural problem found, if any.
func (c *Catalog) validate() error {
	if len(c.Elements) == 0 {
		return errorf("catalog has no elements")
	}
	// Names repeat across build systems; lookups by name take the first.
	type key struct{ system, name string }
	seen := make(map[key]bool, len(c.Elements))
	for i, e := range c.Elements {
		if strings.TrimSpace(e.Name) == "" {
			return errorf("element %d has no name", i)
		}
		k := key{e.SystemID, e.Name}
		if seen[k] {
			return errorf("duplicate element name %q in system %q", e.Name, e.SystemID)
		}
		seen[k] = true
	}
	for i, m := range c.Modules {
		if m.DNA == "" {
			return errorf("module %d has no dna", i)
		}
	}
	return nil
}
