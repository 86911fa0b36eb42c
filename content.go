package server

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"mistvale/server/internal/behavior"
)

// Content directory layout, as exported by the editor:
//
//	behaviors/*.yaml  character graphs
//	systems/*.yaml    shared system graphs
//	regions/*.yaml    regions with areas and their trigger graphs

type regionDocument struct {
	ID    int            `yaml:"id"`
	Name  string         `yaml:"name"`
	Areas []areaDocument `yaml:"areas"`
}

type areaDocument struct {
	Name  string    `yaml:"name"`
	Tiles [][2]int  `yaml:"tiles"`
	Graph yaml.Node `yaml:"graph"`
}

// LoadContent populates the world from a content directory. Files load in
// name order so graph registration is deterministic.
func (w *World) LoadContent(dir string) error {
	if err := loadGraphDir(filepath.Join(dir, "behaviors"), w.AddBehavior); err != nil {
		return err
	}
	if err := loadGraphDir(filepath.Join(dir, "systems"), w.AddSystem); err != nil {
		return err
	}
	return w.loadRegionDir(filepath.Join(dir, "regions"))
}

func loadGraphDir(dir string, register func(*behavior.Graph)) error {
	files, err := yamlFiles(dir)
	if err != nil {
		return err
	}
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		g, err := behavior.DecodeGraph(data)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		register(g)
	}
	return nil
}

func (w *World) loadRegionDir(dir string) error {
	files, err := yamlFiles(dir)
	if err != nil {
		return err
	}
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		var doc regionDocument
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}

		region := &Region{ID: doc.ID, Name: doc.Name}
		for _, ad := range doc.Areas {
			area := &Area{Name: ad.Name, Tiles: make(map[[2]int]struct{}, len(ad.Tiles))}
			for _, tile := range ad.Tiles {
				area.Tiles[tile] = struct{}{}
			}
			if !ad.Graph.IsZero() {
				raw, err := yaml.Marshal(&ad.Graph)
				if err != nil {
					return fmt.Errorf("%s area %q: %w", path, ad.Name, err)
				}
				g, err := behavior.DecodeGraph(raw)
				if err != nil {
					return fmt.Errorf("%s area %q: %w", path, ad.Name, err)
				}
				g.Kind = behavior.KindRegions
				area.Graph = g
			}
			region.Areas = append(region.Areas, area)
		}
		w.AddRegion(region)
	}
	return nil
}

func yamlFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml") {
			files = append(files, filepath.Join(dir, name))
		}
	}
	sort.Strings(files)
	return files, nil
}
