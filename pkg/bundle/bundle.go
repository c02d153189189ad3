// Package bundle discovers and loads game bundles: a manifest describing a
// game's zones, players, and verbs, plus the Lua rule module enforcing its
// outcomes.
package bundle

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/cbodonnell/gametable/pkg/document"
	"github.com/cbodonnell/gametable/pkg/messages"
	"github.com/cbodonnell/gametable/pkg/rules"
)

const (
	// ManifestFileName is the bundle manifest file.
	ManifestFileName = "manifest.json"
	// HooksFileName is the bundle's rule module source.
	HooksFileName = "hooks.lua"
)

// ZoneSpec declares one zone's shape.
type ZoneSpec struct {
	Shape string `json:"shape"`
	Rows  int    `json:"rows,omitempty"`
	Cols  int    `json:"cols,omitempty"`
}

// PlayerSpec binds a roster slot to a mark.
type PlayerSpec struct {
	ID   string `json:"id"`
	Mark string `json:"mark"`
}

// VerbSpec declares one verb: its effect kind, target zone, parameter
// shapes, and the UI hints forwarded to clients.
type VerbSpec struct {
	Kind   string            `json:"kind"`
	Zone   string            `json:"zone"`
	Params map[string]string `json:"params"`
	UI     *messages.VerbUI  `json:"ui,omitempty"`
}

// Manifest is the bundle's declaration file.
type Manifest struct {
	Game     string              `json:"game"`
	Name     string              `json:"name"`
	Version  string              `json:"version"`
	Capacity int                 `json:"capacity"`
	Zones    map[string]ZoneSpec `json:"zones"`
	Players  []PlayerSpec        `json:"players"`
	Turn     string              `json:"turn,omitempty"`
	Verbs    map[string]VerbSpec `json:"verbs"`
	Hooks    []string            `json:"hooks,omitempty"`
}

// Bundle is a loaded game: its manifest plus the sandboxed rule module.
// Bundles are loaded once and shared read-only across sessions.
type Bundle struct {
	Manifest Manifest
	Module   *rules.Module
}

// New builds a bundle from raw manifest and hook source bytes.
func New(manifestData, hooksData []byte) (*Bundle, error) {
	var manifest Manifest
	if err := json.Unmarshal(manifestData, &manifest); err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %v", err)
	}
	if manifest.Game == "" {
		return nil, fmt.Errorf("manifest is missing a game id")
	}
	if manifest.Capacity <= 0 {
		return nil, fmt.Errorf("manifest for %s has no capacity", manifest.Game)
	}
	if len(manifest.Players) == 0 {
		return nil, fmt.Errorf("manifest for %s declares no players", manifest.Game)
	}

	module, err := rules.Load(manifest.Game, hooksData, manifest.Hooks)
	if err != nil {
		return nil, fmt.Errorf("failed to load rule module for %s: %v", manifest.Game, err)
	}

	return &Bundle{
		Manifest: manifest,
		Module:   module,
	}, nil
}

// GameID returns the bundle's game id.
func (b *Bundle) GameID() string {
	return b.Manifest.Game
}

// Capacity returns the number of players the game requires.
func (b *Bundle) Capacity() int {
	return b.Manifest.Capacity
}

// Verb resolves a wire verb name against the manifest's verb schema.
func (b *Bundle) Verb(name string) (VerbSpec, bool) {
	spec, ok := b.Manifest.Verbs[name]
	return spec, ok
}

// InitialState builds a fresh state document from the manifest.
func (b *Bundle) InitialState() *document.Document {
	doc := &document.Document{
		Zones:   make(map[string]document.Zone, len(b.Manifest.Zones)),
		Players: make([]document.Player, 0, len(b.Manifest.Players)),
		Turn:    b.Manifest.Turn,
	}
	for name, spec := range b.Manifest.Zones {
		if spec.Shape == "grid" {
			doc.Zones[name] = document.Zone{Grid: document.NewGrid(spec.Rows, spec.Cols)}
			continue
		}
		doc.Zones[name] = document.Zone{Marks: []string{}}
	}
	for _, player := range b.Manifest.Players {
		doc.Players = append(doc.Players, document.Player{ID: player.ID, Mark: player.Mark})
	}
	if doc.Turn == "" && len(doc.Players) > 0 {
		doc.Turn = doc.Players[0].ID
	}
	return doc
}

// Meta returns the client-facing bundle metadata sent in welcome frames.
func (b *Bundle) Meta() messages.BundleMeta {
	meta := messages.BundleMeta{
		Cards: map[string]interface{}{},
		Verbs: make(map[string]messages.VerbMeta, len(b.Manifest.Verbs)),
	}
	for name, spec := range b.Manifest.Verbs {
		meta.Verbs[name] = messages.VerbMeta{UI: spec.UI}
	}
	return meta
}

// LegalVerbs returns the verb schema sent in legalMoves frames, ordered by
// verb name.
func (b *Bundle) LegalVerbs() []messages.LegalVerb {
	names := make([]string, 0, len(b.Manifest.Verbs))
	for name := range b.Manifest.Verbs {
		names = append(names, name)
	}
	sort.Strings(names)

	verbs := make([]messages.LegalVerb, 0, len(names))
	for _, name := range names {
		verbs = append(verbs, messages.LegalVerb{
			Verb:   name,
			Params: b.Manifest.Verbs[name].Params,
		})
	}
	return verbs
}
