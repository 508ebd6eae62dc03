package model

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/stratumdb/stratum/internal/errors"
)

// LoadEntitiesFile reads entity definitions from a YAML or JSON file.
// The file either has a top-level "entities" key or lists entities at the
// root. Values stay loosely typed; EntitiesToModel does the real parsing.
func LoadEntitiesFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewStoreError(errors.CodeReadFailed,
			fmt.Sprintf("failed to read entities file %s", path), err)
	}

	var doc map[string]any
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, errors.Wrap(errors.ErrCategoryValidation, errors.CodeInvalidEntity,
				fmt.Sprintf("failed to parse YAML entities file %s", path), err)
		}
	case ".json":
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, errors.Wrap(errors.ErrCategoryValidation, errors.CodeInvalidEntity,
				fmt.Sprintf("failed to parse JSON entities file %s", path), err)
		}
	default:
		return nil, errors.NewValidationError(errors.CodeInvalidEntity,
			fmt.Sprintf("unsupported entities file format: %s", ext))
	}

	if inner, ok := doc["entities"]; ok {
		m, ok := inner.(map[string]any)
		if !ok {
			return nil, errors.NewValidationError(errors.CodeInvalidEntity,
				fmt.Sprintf("entities key in %s must be a map, got %T", path, inner))
		}
		return m, nil
	}
	return doc, nil
}
