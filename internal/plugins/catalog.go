package plugins

import (
	"encoding/json"
	"fmt"
	"os"

	_ "embed"
)

//go:embed catalog.json
var defaultCatalogJSON []byte

// Plugin describes one dashboard plugin and the actions it exposes to
// workflows. The catalog is the engine's only coupling to plugin business
// logic: everything else is the HTTP call shape.
type Plugin struct {
	Name        string   `json:"name"`
	DisplayName string   `json:"displayName"`
	Icon        string   `json:"icon,omitempty"`
	Actions     []Action `json:"actions"`
}

// Action is one invocable endpoint of a plugin.
type Action struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Endpoint   string            `json:"endpoint"`
	Method     string            `json:"method"`
	Parameters map[string]string `json:"parameters,omitempty"` // name → type hint, designer only
}

// Catalog is the declarative set of plugins available to action nodes.
type Catalog struct {
	Plugins []Plugin `json:"plugins"`
}

// DefaultCatalog returns the embedded catalog shipped with the engine.
func DefaultCatalog() (*Catalog, error) {
	return parseCatalog(defaultCatalogJSON)
}

// LoadCatalog reads a catalog from a JSON file. An empty path returns the
// embedded default.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plugin catalog %q: %w", path, err)
	}
	return parseCatalog(data)
}

func parseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse plugin catalog: %w", err)
	}
	for _, p := range c.Plugins {
		if p.Name == "" {
			return nil, fmt.Errorf("plugin catalog: plugin with empty name")
		}
		for _, a := range p.Actions {
			if a.ID == "" || a.Endpoint == "" || a.Method == "" {
				return nil, fmt.Errorf("plugin catalog: plugin %q has an incomplete action", p.Name)
			}
		}
	}
	return &c, nil
}

// Lookup returns the action declared by the given plugin, or false when
// either the plugin or the action id is unknown.
func (c *Catalog) Lookup(plugin, actionID string) (*Plugin, *Action, bool) {
	for i := range c.Plugins {
		if c.Plugins[i].Name != plugin {
			continue
		}
		p := &c.Plugins[i]
		for j := range p.Actions {
			if p.Actions[j].ID == actionID {
				return p, &p.Actions[j], true
			}
		}
		return p, nil, false
	}
	return nil, nil, false
}

// Has reports whether the plugin declares the given action.
func (c *Catalog) Has(plugin, actionID string) bool {
	_, _, ok := c.Lookup(plugin, actionID)
	return ok
}
