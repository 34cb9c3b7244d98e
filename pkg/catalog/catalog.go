// Package catalog loads detector definitions from a directory of YAML files
// and keeps the merged detector set current as the files change.
package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/Tributary-ai-services/sitengine/pkg/classify"
	"github.com/Tributary-ai-services/sitengine/pkg/config"
)

// File is one catalog file
type File struct {
	Version     string                      `yaml:"version"`
	Name        string                      `yaml:"name"`
	Description string                      `yaml:"description"`
	Presets     []string                    `yaml:"presets"`
	Detectors   []classify.Detector         `yaml:"detectors"`
	RulePack    []classify.RulePackDetector `yaml:"rule_pack"`

	// Path is the file the definitions were read from
	Path string `yaml:"-"`
}

// LoadFile reads and parses one catalog file. ${VAR} references are expanded
// before parsing.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog file %s: %w", path, err)
	}

	data = config.ExpandEnv(data)

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing catalog file %s: %w", path, err)
	}
	f.Path = path
	return &f, nil
}

// LoadDir reads all .yaml and .yml files from dir in file name order.
// Subdirectories and hidden files are skipped.
func LoadDir(dir string) ([]File, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading catalog directory %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !isCatalogFile(entry.Name()) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	files := make([]File, 0, len(names))
	for _, name := range names {
		f, err := LoadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		files = append(files, *f)
	}
	return files, nil
}

func isCatalogFile(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

// Merge combines catalog files into one detector set, keeping file order and
// the order of definitions within each file. Referenced presets come before
// the file's own detectors. Detectors without a source are marked manual.
// Detector ids must be unique among simple detectors and among rule-pack
// detectors.
func Merge(files []File) (classify.DetectorSet, error) {
	var set classify.DetectorSet
	seenSimple := make(map[string]string)
	seenRulePack := make(map[string]string)

	addSimple := func(d classify.Detector, path string) error {
		if strings.TrimSpace(d.ID) == "" {
			return fmt.Errorf("%s: detector %q has no id", path, d.Name)
		}
		if prev, ok := seenSimple[d.ID]; ok {
			return fmt.Errorf("%s: detector id %q already defined in %s", path, d.ID, prev)
		}
		seenSimple[d.ID] = path
		if d.Source == "" {
			d.Source = classify.SourceManual
		}
		set.Detectors = append(set.Detectors, d)
		return nil
	}

	for _, f := range files {
		for _, id := range f.Presets {
			preset, ok := classify.PresetByID(id)
			if !ok {
				return classify.DetectorSet{}, fmt.Errorf("%s: unknown preset %q", f.Path, id)
			}
			if err := addSimple(preset, f.Path); err != nil {
				return classify.DetectorSet{}, err
			}
		}
		for _, d := range f.Detectors {
			if err := addSimple(d, f.Path); err != nil {
				return classify.DetectorSet{}, err
			}
		}
		for _, d := range f.RulePack {
			if strings.TrimSpace(d.ID) == "" {
				return classify.DetectorSet{}, fmt.Errorf("%s: rule-pack detector %q has no id", f.Path, d.Name)
			}
			if prev, ok := seenRulePack[d.ID]; ok {
				return classify.DetectorSet{}, fmt.Errorf("%s: rule-pack detector id %q already defined in %s", f.Path, d.ID, prev)
			}
			seenRulePack[d.ID] = f.Path
			set.RulePack = append(set.RulePack, d)
		}
	}
	return set, nil
}

// Load reads dir and merges its files into a detector set
func Load(dir string) (classify.DetectorSet, error) {
	files, err := LoadDir(dir)
	if err != nil {
		return classify.DetectorSet{}, err
	}
	return Merge(files)
}

// Catalog holds the current detector set. A failed reload keeps the last
// set that loaded successfully.
type Catalog struct {
	dir    string
	logger *zap.Logger

	mu       sync.RWMutex
	set      classify.DetectorSet
	loadedAt time.Time
	onReload []func(classify.DetectorSet)
}

// New loads dir into a new catalog
func New(dir string, logger *zap.Logger) (*Catalog, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Catalog{dir: dir, logger: logger}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// NewStatic returns a catalog that always serves set. Reload is a no-op.
func NewStatic(set classify.DetectorSet) *Catalog {
	return &Catalog{set: set, logger: zap.NewNop(), loadedAt: time.Now()}
}

// Dir returns the catalog directory, empty for a static catalog
func (c *Catalog) Dir() string {
	return c.dir
}

// Current returns the current detector set
func (c *Catalog) Current() classify.DetectorSet {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.set
}

// LoadedAt returns when the current set was loaded
func (c *Catalog) LoadedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loadedAt
}

// OnReload registers fn to run after every successful reload
func (c *Catalog) OnReload(fn func(classify.DetectorSet)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onReload = append(c.onReload, fn)
}

// Reload re-reads the catalog directory and swaps in the new set
func (c *Catalog) Reload() error {
	if c.dir == "" {
		return nil
	}

	set, err := Load(c.dir)
	if err != nil {
		c.logger.Error("catalog reload failed, keeping previous detectors",
			zap.String("dir", c.dir),
			zap.Error(err),
		)
		return err
	}

	c.mu.Lock()
	c.set = set
	c.loadedAt = time.Now()
	callbacks := append([]func(classify.DetectorSet){}, c.onReload...)
	c.mu.Unlock()

	c.logger.Info("catalog loaded",
		zap.String("dir", c.dir),
		zap.Int("detectors", len(set.Detectors)),
		zap.Int("rule_pack_detectors", len(set.RulePack)),
	)

	for _, fn := range callbacks {
		fn(set)
	}
	return nil
}
