package catalog

import (
	"fmt"
	"strconv"
	"strings"
)

// RenderMaterial is the renderer-facing form of a Material, computed once
// per loaded catalog.
type RenderMaterial struct {
	Name       string     `json:"name"`
	Color      [3]float32 `json:"color"` // linear 0..1 RGB
	TextureURL string     `json:"textureUrl,omitempty"`
}

// neutralColor is used for materials with no or unparsable colour.
var neutralColor = [3]float32{0.8, 0.8, 0.8}

// parseHexColor parses "#rgb" or "#rrggbb".
func parseHexColor(s string) ([3]float32, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) == 3 {
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	}
	if len(s) != 6 {
		return neutralColor, fmt.Errorf("catalog: invalid colour %q", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return neutralColor, fmt.Errorf("catalog: invalid colour %q: %w", s, err)
	}
	return [3]float32{
		float32(v>>16&0xff) / 255,
		float32(v>>8&0xff) / 255,
		float32(v&0xff) / 255,
	}, nil
}

func (c *Catalog) buildRenderMaterials() {
	c.render = make(map[string]RenderMaterial, len(c.Materials))
	for _, m := range c.Materials {
		col, err := parseHexColor(m.DefaultColor)
		if err != nil {
			col = neutralColor
		}
		c.render[m.Name] = RenderMaterial{Name: m.Name, Color: col, TextureURL: m.TextureURL}
	}
}

// RenderMaterial returns the render material for a material name.
func (c *Catalog) RenderMaterial(name string) (RenderMaterial, bool) {
	rm, ok := c.render[name]
	return rm, ok
}

// ElementMaterial returns the render material for an element's default
// material, falling back to DefaultMaterialName and then a neutral colour.
func (c *Catalog) ElementMaterial(elementName string) RenderMaterial {
	if e, ok := c.Element(elementName); ok && e.DefaultMaterial != "" {
		if rm, ok := c.render[e.DefaultMaterial]; ok {
			return rm
		}
	}
	if rm, ok := c.render[DefaultMaterialName]; ok {
		return rm
	}
	return RenderMaterial{Name: DefaultMaterialName, Color: neutralColor}
}
