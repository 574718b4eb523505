package scene

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Error types
var (
	ErrEmptyLayout   = errors.New("layout has no layers")
	ErrInvalidLayer  = errors.New("invalid layer")
	ErrInvalidBounds = errors.New("invalid scene bounds")
)

// Layer is one panel of the scene: Sprites sprites drawn from random frames
// of Bundle.
type Layer struct {
	Name    string `yaml:"name" json:"name"`
	Bundle  string `yaml:"bundle" json:"bundle"`
	Sprites int    `yaml:"sprites" json:"sprites"`
}

// Layout describes what a scene draws on every refresh.
type Layout struct {
	Width  int     `yaml:"width" json:"width"`
	Height int     `yaml:"height" json:"height"`
	Layers []Layer `yaml:"layers" json:"layers"`
}

// DefaultLayout is the item panel of the benchmark scene: 30 random frames
// from each of the icon, role and wall bundles on a 2048x2048 map.
func DefaultLayout() Layout {
	return Layout{
		Width:  2048,
		Height: 2048,
		Layers: []Layer{
			{Name: "item_icon", Bundle: "icon", Sprites: DefaultSprites},
			{Name: "item_role", Bundle: "role", Sprites: DefaultSprites},
			{Name: "item_wall", Bundle: "wall", Sprites: DefaultSprites},
		},
	}
}

// DefaultSprites is the number of sprites per layer of the default layout.
const DefaultSprites = 30

// LayoutForBundles returns a layout with one layer per bundle, each drawing
// sprites sprites on the default map. A non-positive sprites count uses
// DefaultSprites.
func LayoutForBundles(bundles []string, sprites int) Layout {
	if sprites < 1 {
		sprites = DefaultSprites
	}
	l := DefaultLayout()
	l.Layers = make([]Layer, 0, len(bundles))
	for _, b := range bundles {
		l.Layers = append(l.Layers, Layer{Name: "item_" + b, Bundle: b, Sprites: sprites})
	}
	return l
}

// LoadLayout reads a YAML layout file. Missing bounds default to those of
// DefaultLayout.
func LoadLayout(path string) (Layout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Layout{}, fmt.Errorf("failed to read layout %s: %w", path, err)
	}
	l, err := ParseLayout(data)
	if err != nil {
		return Layout{}, fmt.Errorf("layout %s: %w", path, err)
	}
	return l, nil
}

// ParseLayout decodes and validates a YAML layout.
func ParseLayout(data []byte) (Layout, error) {
	var l Layout
	if err := yaml.Unmarshal(data, &l); err != nil {
		return Layout{}, fmt.Errorf("failed to parse layout: %w", err)
	}
	def := DefaultLayout()
	if l.Width == 0 {
		l.Width = def.Width
	}
	if l.Height == 0 {
		l.Height = def.Height
	}
	if err := l.Validate(); err != nil {
		return Layout{}, err
	}
	return l, nil
}

// Validate checks that the layout can be drawn.
func (l Layout) Validate() error {
	if len(l.Layers) == 0 {
		return ErrEmptyLayout
	}
	if l.Width <= 0 || l.Height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidBounds, l.Width, l.Height)
	}
	seen := make(map[string]bool, len(l.Layers))
	for i, layer := range l.Layers {
		switch {
		case layer.Name == "":
			return fmt.Errorf("%w: layer %d has no name", ErrInvalidLayer, i)
		case seen[layer.Name]:
			return fmt.Errorf("%w: duplicate layer %s", ErrInvalidLayer, layer.Name)
		case layer.Bundle == "":
			return fmt.Errorf("%w: layer %s has no bundle", ErrInvalidLayer, layer.Name)
		case layer.Sprites < 1:
			return fmt.Errorf("%w: layer %s needs at least one sprite", ErrInvalidLayer, layer.Name)
		}
		seen[layer.Name] = true
	}
	return nil
}

// Bundles returns the distinct bundles the layout draws from, in layer order.
func (l Layout) Bundles() []string {
	var out []string
	seen := map[string]bool{}
	for _, layer := range l.Layers {
		if !seen[layer.Bundle] {
			seen[layer.Bundle] = true
			out = append(out, layer.Bundle)
		}
	}
	return out
}

// Sprites returns the number of sprites drawn per refresh.
func (l Layout) Sprites() int {
	n := 0
	for _, layer := range l.Layers {
		n += layer.Sprites
	}
	return n
}
