package schema

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileEntry mirrors Entry's shape for YAML decoding, using snake_case keys
// matching the configuration loader's convention (internal/config).
type fileEntry struct {
	Name               string            `yaml:"name"`
	PrimaryKey         []string          `yaml:"primary_key"`
	DateCol            string            `yaml:"date_col"`
	UpdateStrategy     string            `yaml:"update_strategy"`
	UpdateBySymbol     bool              `yaml:"update_by_symbol"`
	EntityCol          string            `yaml:"entity_col"`
	RevisionCol        string            `yaml:"revision_col"`
	ReportingPeriodCol string            `yaml:"reporting_period_col"`
	UpstreamAPIID      string            `yaml:"upstream_api_id"`
	RequiredParams     map[string]string `yaml:"required_params"`
}

type fileDocument struct {
	Tables []fileEntry `yaml:"tables"`
}

// LoadEntries reads the static declarative table list (§4.A "loaded once
// at startup from a static declarative source") from a YAML document.
func LoadEntries(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("schema: open %s: %w", path, err)
	}
	defer f.Close()

	var doc fileDocument
	if err := yaml.NewDecoder(f).Decode(&doc); err != nil {
		return nil, fmt.Errorf("schema: decode %s: %w", path, err)
	}

	entries := make([]Entry, 0, len(doc.Tables))
	for _, fe := range doc.Tables {
		entries = append(entries, Entry{
			Name:               fe.Name,
			PrimaryKey:         fe.PrimaryKey,
			DateCol:            fe.DateCol,
			UpdateStrategy:     UpdateStrategy(fe.UpdateStrategy),
			UpdateBySymbol:     fe.UpdateBySymbol,
			EntityCol:          fe.EntityCol,
			RevisionCol:        fe.RevisionCol,
			ReportingPeriodCol: fe.ReportingPeriodCol,
			UpstreamAPIID:      fe.UpstreamAPIID,
			RequiredParams:     fe.RequiredParams,
		})
	}
	return entries, nil
}
