package bundle

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strconv"
	"strings"
	"sync"

	"github.com/cbodonnell/gametable/pkg/log"
)

//go:embed builtin
var builtinFS embed.FS

// ErrUnknownGame is returned when no bundle is loaded for a game id.
type ErrUnknownGame struct {
	GameID string
}

func (e *ErrUnknownGame) Error() string {
	return fmt.Sprintf("unknown game: %s", e.GameID)
}

func IsUnknownGame(err error) bool {
	_, ok := err.(*ErrUnknownGame)
	return ok
}

// GameInfo describes one loadable game.
type GameInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Registry holds the loaded bundles, keyed by game id with every discovered
// version. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	bundles map[string][]*Bundle
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		bundles: make(map[string][]*Bundle),
	}
}

// Builtin returns a registry holding the bundles compiled into the binary.
func Builtin() (*Registry, error) {
	sub, err := fs.Sub(builtinFS, "builtin")
	if err != nil {
		return nil, fmt.Errorf("failed to open builtin bundles: %v", err)
	}
	registry := NewRegistry()
	if err := registry.loadTree(sub); err != nil {
		return nil, err
	}
	return registry, nil
}

// LoadDir scans a games directory for bundles. Expected layouts are
// <dir>/<game>/<version>/{manifest.json,hooks.lua} and flat <name>.bundle
// archives. Malformed bundles are logged and skipped; an unreadable
// directory is an error.
func LoadDir(dir string) (*Registry, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("failed to read games directory %s: %v", dir, err)
	}
	registry := NewRegistry()
	if err := registry.loadTree(os.DirFS(dir)); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read games directory %s: %v", dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ArchiveExtension) {
			continue
		}
		archivePath := dir + string(os.PathSeparator) + entry.Name()
		b, err := LoadArchive(archivePath)
		if err != nil {
			log.Warn("Skipping bundle archive %s: %v", archivePath, err)
			continue
		}
		registry.Add(b)
	}
	return registry, nil
}

func (r *Registry) loadTree(fsys fs.FS) error {
	games, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("failed to read games tree: %v", err)
	}
	for _, game := range games {
		if !game.IsDir() {
			continue
		}
		versions, err := fs.ReadDir(fsys, game.Name())
		if err != nil {
			log.Warn("Skipping game %s: %v", game.Name(), err)
			continue
		}
		for _, version := range versions {
			if !version.IsDir() {
				continue
			}
			dir := path.Join(game.Name(), version.Name())
			b, err := loadBundleDir(fsys, dir)
			if err != nil {
				log.Warn("Skipping bundle %s: %v", dir, err)
				continue
			}
			r.Add(b)
		}
	}
	return nil
}

func loadBundleDir(fsys fs.FS, dir string) (*Bundle, error) {
	manifestData, err := fs.ReadFile(fsys, path.Join(dir, ManifestFileName))
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %v", err)
	}
	hooksData, err := fs.ReadFile(fsys, path.Join(dir, HooksFileName))
	if err != nil {
		return nil, fmt.Errorf("failed to read hooks: %v", err)
	}
	return New(manifestData, hooksData)
}

// Add registers a bundle, keeping versions sorted ascending.
func (r *Registry) Add(b *Bundle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	gameID := b.GameID()
	versions := append(r.bundles[gameID], b)
	for i := len(versions) - 1; i > 0; i-- {
		if compareVersions(versions[i-1].Manifest.Version, versions[i].Manifest.Version) <= 0 {
			break
		}
		versions[i-1], versions[i] = versions[i], versions[i-1]
	}
	r.bundles[gameID] = versions
}

// Latest resolves a game id to its highest loaded version.
func (r *Registry) Latest(gameID string) (*Bundle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	versions, ok := r.bundles[gameID]
	if !ok || len(versions) == 0 {
		return nil, &ErrUnknownGame{GameID: gameID}
	}
	return versions[len(versions)-1], nil
}

// List returns the latest version of every loaded game, sorted by id.
func (r *Registry) List() []GameInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	games := make([]GameInfo, 0, len(r.bundles))
	for gameID, versions := range r.bundles {
		latest := versions[len(versions)-1]
		name := latest.Manifest.Name
		if name == "" {
			name = gameID
		}
		games = append(games, GameInfo{
			ID:      gameID,
			Name:    name,
			Version: latest.Manifest.Version,
		})
	}
	for i := 1; i < len(games); i++ {
		for j := i; j > 0 && games[j-1].ID > games[j].ID; j-- {
			games[j-1], games[j] = games[j], games[j-1]
		}
	}
	return games
}

// compareVersions orders dotted numeric versions; non-numeric segments fall
// back to string order.
func compareVersions(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	for i := 0; i < len(as) || i < len(bs); i++ {
		var av, bv string
		if i < len(as) {
			av = as[i]
		}
		if i < len(bs) {
			bv = bs[i]
		}
		an, aerr := strconv.Atoi(av)
		bn, berr := strconv.Atoi(bv)
		if aerr == nil && berr == nil {
			if an != bn {
				if an < bn {
					return -1
				}
				return 1
			}
			continue
		}
		if av != bv {
			if av < bv {
				return -1
			}
			return 1
		}
	}
	return 0
}
