package model

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/specweave/specweave/core/errors"
	"github.com/specweave/specweave/internal/logging"
)

// categoryFiles maps each category to its file name inside a model
// directory. A missing file means the model declares no types in that
// category, which is not an error.
var categoryFiles = map[Category]string{
	CategorySpecification: "specifications.yaml",
	CategoryObject:        "objects.yaml",
	CategoryFloat:         "floats.yaml",
	CategoryRelation:      "relations.yaml",
	CategoryView:          "views.yaml",
}

// categoryFile is the on-disk shape of one category file.
type categoryFile struct {
	// Types are the type declarations for this category.
	Types []*TypeDefinition `yaml:"types"`

	// Aliases maps alternate identifiers to canonical type IDs.
	Aliases map[string]string `yaml:"aliases,omitempty"`

	// Rules are relation inference rules. Relation category only.
	Rules []*InferenceRule `yaml:"rules,omitempty"`
}

// modelTables holds one loaded model: its types per category, aliases,
// and inference rules.
type modelTables struct {
	name     string
	dir      string
	types    map[Category]map[string]*TypeDefinition
	aliases  map[Category]map[string]string
	rules    []*InferenceRule
	declared map[Category][]*TypeDefinition // load order, duplicates included
}

// findModelDir locates a model directory, checking the home directory
// first, then the project's local model directory. A model found in
// neither is a fatal ModelError.
func findModelDir(name string, searchDirs []string) (string, error) {
	var searched []string
	for _, base := range searchDirs {
		if base == "" {
			continue
		}
		dir := filepath.Join(base, name)
		searched = append(searched, dir)
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir, nil
		}
	}
	return "", errors.NewModel(name, searched)
}

// loadModel reads all category files of one model directory.
func loadModel(name, dir string) (*modelTables, error) {
	mt := &modelTables{
		name:     name,
		dir:      dir,
		types:    make(map[Category]map[string]*TypeDefinition),
		aliases:  make(map[Category]map[string]string),
		declared: make(map[Category][]*TypeDefinition),
	}
	for _, cat := range Categories {
		mt.types[cat] = make(map[string]*TypeDefinition)
		mt.aliases[cat] = make(map[string]string)
	}

	total := 0
	for _, cat := range Categories {
		path := filepath.Join(dir, categoryFiles[cat])
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, errors.NewIO("read", path, err)
		}

		var cf categoryFile
		if err := yaml.Unmarshal(data, &cf); err != nil {
			return nil, errors.NewParse("YAML", path, err.Error())
		}

		for _, td := range cf.Types {
			if td.ID == "" {
				// Not fatal: skip with a logged diagnostic.
				logging.TypeSkipped(name, string(cat), "missing id")
				continue
			}
			td.Category = cat
			applyCategoryDefaults(td)
			for _, ad := range td.Attributes {
				ad.OwnerTypeRef = td.ID
			}
			mt.declared[cat] = append(mt.declared[cat], td)
			if _, exists := mt.types[cat][td.ID]; !exists {
				mt.types[cat][td.ID] = td
			}
			total++
		}
		for alias, target := range cf.Aliases {
			mt.aliases[cat][alias] = target
		}
		if cat == CategoryRelation {
			mt.rules = append(mt.rules, cf.Rules...)
		}
	}

	logging.ModelLoad(name, dir, total)
	return mt, nil
}

// applyCategoryDefaults fills category-specific fields omitted by the
// author.
func applyCategoryDefaults(td *TypeDefinition) {
	if td.LongName == "" {
		td.LongName = td.ID
	}
	if td.Category == CategoryFloat && td.CounterGroup == "" {
		td.CounterGroup = td.ID
	}
}
