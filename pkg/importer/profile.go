package importer

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
)

// ProfileFile is the on-disk form of an import profile:
//
//	name: Tag list
//	entity_type: tag
//	column_mappings:
//	  Tag Name: name
//	  Units: engineeringUnits
type ProfileFile struct {
	Name           string            `yaml:"name"`
	EntityType     string            `yaml:"entity_type"`
	ColumnMappings map[string]string `yaml:"column_mappings"`
}

// LoadProfileFile reads a YAML import profile.
func LoadProfileFile(path string) (*models.ImportProfile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read import profile: %w", err)
	}
	return ParseProfile(b)
}

func ParseProfile(b []byte) (*models.ImportProfile, error) {
	var file ProfileFile
	if err := yaml.Unmarshal(b, &file); err != nil {
		return nil, fmt.Errorf("failed to parse import profile: %w", err)
	}
	if file.EntityType == "" {
		return nil, fmt.Errorf("import profile %q has no entity_type", file.Name)
	}
	if !models.IsEntityType(file.EntityType) {
		return nil, fmt.Errorf("import profile %q has unsupported entity_type %s", file.Name, file.EntityType)
	}
	if len(file.ColumnMappings) == 0 {
		return nil, fmt.Errorf("import profile %q has no column_mappings", file.Name)
	}

	return &models.ImportProfile{
		Name:           file.Name,
		EntityType:     file.EntityType,
		ColumnMappings: database.NewJSONB(models.ColumnMappings(file.ColumnMappings)),
	}, nil
}
