package cas

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadOptions reads strategy options from a YAML file. Field names
// match the Options struct (version, ssoBaseURL, serverBaseURL,
// validateURL, serviceURL, useSAML). The result is validated by New.
func LoadOptions(path string) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Options{}, fmt.Errorf("cas: read options file: %w", err)
	}

	var opts Options
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return Options{}, fmt.Errorf("cas: parse options file: %w", err)
	}
	return opts, nil
}
