package genconfig

import (
	"os"
	"sort"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/forgepoint/gentuner/internal/model"
)

// Table holds the static parameter defaults used when no learned history is
// available, and to fill parameters history has not covered. Base applies to
// every content type; Types overrides it per type.
type Table struct {
	Base  model.ParameterSet            `yaml:"base"`
	Types map[string]model.ParameterSet `yaml:"types"`
}

// DefaultTable returns the compiled-in defaults. The per-type entries bias
// short-form copy toward hotter sampling and long-form copy toward larger
// budgets with more revision passes.
func DefaultTable() Table {
	return Table{
		Base: model.ParameterSet{
			model.ParamTemperature:      0.8,
			model.ParamTopP:             0.95,
			model.ParamFrequencyPenalty: 0.3,
			model.ParamPresencePenalty:  0.2,
			model.ParamMaxTokens:        1024,
			model.ParamMaxRevisions:     2,
			model.ParamStructureVariant: 0,
		},
		Types: map[string]model.ParameterSet{
			"caption": {
				model.ParamTemperature:      0.9,
				model.ParamFrequencyPenalty: 0.4,
				model.ParamPresencePenalty:  0.3,
				model.ParamMaxTokens:        256,
				model.ParamMaxRevisions:     1,
				model.ParamStructureVariant: 2,
			},
			"case_study": {
				model.ParamTemperature:  0.7,
				model.ParamMaxTokens:    2048,
				model.ParamMaxRevisions: 3,
			},
			"landing_page": {
				model.ParamTemperature: 0.85,
				model.ParamMaxTokens:   1536,
			},
			"blog_post": {
				model.ParamMaxTokens:    3072,
				model.ParamMaxRevisions: 3,
			},
			"meta_description": {
				model.ParamTemperature:  0.6,
				model.ParamMaxTokens:    128,
				model.ParamMaxRevisions: 1,
			},
		},
	}
}

// For returns the defaults for a content type: the base set with the type's
// overrides applied. The result is a fresh copy the caller may mutate.
func (t Table) For(componentType string) model.ParameterSet {
	params := make(model.ParameterSet, len(t.Base))
	for name, v := range t.Base {
		params[name] = v
	}
	for name, v := range t.Types[componentType] {
		params[name] = v
	}
	return params
}

// ContentTypes returns the content types the table knows about, sorted.
func (t Table) ContentTypes() []string {
	types := make([]string, 0, len(t.Types))
	for name := range t.Types {
		types = append(types, name)
	}
	sort.Strings(types)
	return types
}

// LoadTable reads a YAML overlay and merges it over the compiled-in table,
// so a deployment only has to spell out the values it changes.
func LoadTable(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Table{}, eris.Wrapf(err, "genconfig: read defaults %s", path)
	}

	var wrapper struct {
		Defaults Table `yaml:"defaults"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return Table{}, eris.Wrap(err, "genconfig: parse defaults")
	}

	table := DefaultTable()
	for name, v := range wrapper.Defaults.Base {
		table.Base[name] = v
	}
	for componentType, overrides := range wrapper.Defaults.Types {
		merged := table.Types[componentType]
		if merged == nil {
			merged = make(model.ParameterSet, len(overrides))
		}
		for name, v := range overrides {
			merged[name] = v
		}
		table.Types[componentType] = merged
	}
	return table, nil
}
