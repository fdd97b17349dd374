package orkestro

import "sort"

// ConfigKey is an opaque, type-tagged key into a ConfigLayer. Keys compare
// by name; declare them once and share the value.
type ConfigKey struct {
	name string
}

// NewConfigKey declares a config key with the given name.
func NewConfigKey(name string) ConfigKey {
	return ConfigKey{name: name}
}

// String returns the key name.
func (k ConfigKey) String() string { return k.name }

// KeyAuthSchemePreference carries an explicit auth scheme preference
// ([]string or comma-separated string) through config layers. A value set
// here counts as explicit client configuration and wins over the
// environment and config-file sources.
var KeyAuthSchemePreference = NewConfigKey("auth_scheme_preference")

type configEntry struct {
	key   ConfigKey
	value any
}

// ConfigLayer is a named, ordered set of typed key/value pairs. Layers are
// immutable once constructed; With returns extended copies. During merge,
// later layers overwrite earlier layers for identical keys.
type ConfigLayer struct {
	name    string
	entries []configEntry
}

// NewConfigLayer creates an empty layer with the given name.
func NewConfigLayer(name string) *ConfigLayer {
	return &ConfigLayer{name: name}
}

// Name returns the layer name.
func (l *ConfigLayer) Name() string { return l.name }

// With returns a copy of the layer extended with key=value. Within one
// layer the last write for a key wins.
func (l *ConfigLayer) With(key ConfigKey, value any) *ConfigLayer {
	entries := make([]configEntry, len(l.entries), len(l.entries)+1)
	copy(entries, l.entries)
	entries = append(entries, configEntry{key: key, value: value})
	return &ConfigLayer{name: l.name, entries: entries}
}

// Get returns the last value written for key in this layer.
func (l *ConfigLayer) Get(key ConfigKey) (any, bool) {
	for i := len(l.entries) - 1; i >= 0; i-- {
		if l.entries[i].key == key {
			return l.entries[i].value, true
		}
	}
	return nil, false
}

// Len returns the number of writes recorded in the layer.
func (l *ConfigLayer) Len() int { return len(l.entries) }

// ConfigBag is the merged, read-only view of all plugin config layers.
type ConfigBag struct {
	values map[ConfigKey]any
}

func newConfigBag() *ConfigBag {
	return &ConfigBag{values: make(map[ConfigKey]any)}
}

// Get returns the effective value for key after all layers were merged.
func (b *ConfigBag) Get(key ConfigKey) (any, bool) {
	if b == nil {
		return nil, false
	}
	v, ok := b.values[key]
	return v, ok
}

func (b *ConfigBag) merge(l *ConfigLayer) {
	for _, e := range l.entries {
		b.values[e.key] = e.value
	}
}

// Plugin contributes a config layer and/or partial components to a client.
// Plugins are stably sorted by Order (ties preserve registration sequence)
// and folded in that order: Configure observes only the merge result of
// strictly lower-order plugins through current, and contributes through b.
// This makes the composition acyclic by construction.
type Plugin interface {
	// Order is the stable-sort key. Lower orders fold first.
	Order() int
	// Layer returns the plugin's config layer, or nil.
	Layer() *ConfigLayer
	// Configure contributes components. current is the frozen merge of all
	// lower-order plugins; b starts as a copy of current.
	Configure(current *RuntimeComponents, b *ComponentsBuilder)
}

// StaticPlugin is a Plugin built from plain values, for the common case
// where no dedicated type is warranted.
type StaticPlugin struct {
	PluginOrder   int
	ConfigLayer   *ConfigLayer
	ConfigureFunc func(current *RuntimeComponents, b *ComponentsBuilder)
}

// Order implements the Plugin interface.
func (p *StaticPlugin) Order() int { return p.PluginOrder }

// Layer implements the Plugin interface.
func (p *StaticPlugin) Layer() *ConfigLayer { return p.ConfigLayer }

// Configure implements the Plugin interface.
func (p *StaticPlugin) Configure(current *RuntimeComponents, b *ComponentsBuilder) {
	if p.ConfigureFunc != nil {
		p.ConfigureFunc(current, b)
	}
}

// sortPlugins stable-sorts by order, preserving registration sequence for
// ties. The input slice is not mutated.
func sortPlugins(plugins []Plugin) []Plugin {
	sorted := make([]Plugin, len(plugins))
	copy(sorted, plugins)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Order() < sorted[j].Order()
	})
	return sorted
}

// buildComponents folds client plugins, then operation-scoped plugins, into
// a frozen RuntimeComponents snapshot. Operation plugins are appended after
// all client plugins so operation overrides always win. The fold is
// side-effect-free: plugins never observe later contributions.
func buildComponents(clientPlugins, operationPlugins []Plugin) *RuntimeComponents {
	bag := newConfigBag()
	current := newRuntimeComponents(bag)

	fold := func(plugins []Plugin) {
		for _, p := range plugins {
			if l := p.Layer(); l != nil {
				bag.merge(l)
			}
			b := current.toBuilder()
			p.Configure(current, b)
			current = b.freeze(bag)
		}
	}
	fold(sortPlugins(clientPlugins))
	fold(sortPlugins(operationPlugins))

	return current
}
