package results

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// EvalConfig represents the configuration section of the eval YAML
type EvalConfig struct {
	Reference  string    `yaml:"reference"`
	Hypothesis string    `yaml:"hypothesis"`
	KeyColumn  string    `yaml:"keycolumn"`
	Thresholds []float64 `yaml:"thresholds"`
	TopN       int       `yaml:"topn"`
	Timestamp  string    `yaml:"timestamp"`
}

// EvalSpec represents a saved evaluation: how it was run and what it produced
type EvalSpec struct {
	Config EvalConfig `yaml:"config"`
	Report *Report    `yaml:"report"`
}

// NewEvalSpec wraps a report with its run configuration
func NewEvalSpec(r *Report) EvalSpec {
	thresholds := make([]float64, 0, len(r.MapCER))
	for _, ts := range r.MapCER {
		thresholds = append(thresholds, ts.Threshold)
	}

	return EvalSpec{
		Config: EvalConfig{
			Reference:  r.Reference,
			Hypothesis: r.Hypothesis,
			KeyColumn:  r.KeyColumn,
			Thresholds: thresholds,
			TopN:       r.TopN,
			Timestamp:  r.CreatedAt.Format("2006-01-02_15-04-05"),
		},
		Report: r,
	}
}

// WriteYAML encodes the report and its configuration as YAML
func (r *Report) WriteYAML(w io.Writer) error {
	spec := NewEvalSpec(r)

	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(&spec); err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}
	return encoder.Close()
}

// SaveToYAML saves the report to <dir>/<hypothesis>-<timestamp>.yaml and returns the path
func SaveToYAML(r *Report, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create evals directory: %w", err)
	}

	name := strings.TrimSuffix(filepath.Base(r.Hypothesis), filepath.Ext(r.Hypothesis))
	if name == "" || name == "." {
		name = "eval"
	}
	filename := filepath.Join(dir, fmt.Sprintf("%s-%s.yaml", name, r.CreatedAt.Format("2006-01-02_15-04-05")))

	file, err := os.Create(filename)
	if err != nil {
		return "", fmt.Errorf("failed to write YAML file: %w", err)
	}
	defer file.Close()

	if err := r.WriteYAML(file); err != nil {
		return "", err
	}

	return filename, nil
}

// LoadYAML reads a report saved by SaveToYAML
func LoadYAML(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read YAML file: %w", err)
	}

	var spec EvalSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("failed to parse YAML file: %w", err)
	}
	if spec.Report == nil {
		return nil, fmt.Errorf("failed to parse YAML file: no report section in %s", path)
	}

	return spec.Report, nil
}
