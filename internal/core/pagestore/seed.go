package pagestore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// ImportYAML loads template definitions from a YAML file mapping template
// names to page definitions and upserts each into the store. Used to seed a
// fresh database from a checked-in template set.
func (s *Store) ImportYAML(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read template seed file: %w", err)
	}

	var defs map[string]interface{}
	if err := yaml.Unmarshal(data, &defs); err != nil {
		return 0, fmt.Errorf("failed to parse template seed file: %w", err)
	}

	imported := 0
	for name, def := range defs {
		raw, err := json.Marshal(def)
		if err != nil {
			return imported, fmt.Errorf("template %q: %w", name, err)
		}
		if err := s.Save(ctx, name, raw); err != nil {
			return imported, err
		}
		imported++
	}

	s.logger.WithFields(logrus.Fields{
		"file":  path,
		"count": imported,
	}).Info("Templates imported")
	return imported, nil
}
