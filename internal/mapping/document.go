package mapping

import (
	"encoding/json"
	"fmt"

	"github.com/lendgrid/export-profiles/internal/domain"

	"gopkg.in/yaml.v3"
)

// Document formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Document is the editor-facing mapping_json shape. Tables are rendered in
// full (catalog defaults merged with overrides).
type Document struct {
	CoreFields      domain.FieldMapping    `json:"core_fields" yaml:"core_fields"`
	ExtensionFields domain.FieldMapping    `json:"extension_fields" yaml:"extension_fields"`
	ValidationRules domain.ValidationRules `json:"validation_rules" yaml:"validation_rules"`
}

// rawDocument distinguishes a missing rule set from an all-false one.
type rawDocument struct {
	CoreFields      domain.FieldMapping     `json:"core_fields" yaml:"core_fields"`
	ExtensionFields domain.FieldMapping     `json:"extension_fields" yaml:"extension_fields"`
	ValidationRules *domain.ValidationRules `json:"validation_rules" yaml:"validation_rules"`
}

// ExportDocument renders a profile as a full mapping document.
func ExportDocument(p *domain.MappingProfile) (*Document, error) {
	core, err := MergeCore(p.Platform, p.CoreFieldMapping)
	if err != nil {
		return nil, err
	}
	ext, err := MergeExtension(p.Platform, p.ExtensionFieldMapping)
	if err != nil {
		return nil, err
	}
	return &Document{CoreFields: core, ExtensionFields: ext, ValidationRules: p.ValidationRules}, nil
}

// DefaultDocument renders the generated defaults of a platform.
func DefaultDocument(platform string) (*Document, error) {
	d, err := GenerateDefaultMapping(platform)
	if err != nil {
		return nil, err
	}
	return &Document{
		CoreFields:      d.CoreFieldMapping,
		ExtensionFields: d.ExtensionFieldMapping,
		ValidationRules: d.ValidationRules,
	}, nil
}

// ImportedMapping is a document reduced to what a profile stores.
type ImportedMapping struct {
	CoreFieldMapping      domain.FieldMapping
	ExtensionFieldMapping domain.FieldMapping
	ValidationRules       domain.ValidationRules
}

// ImportDocument compacts a document against the platform defaults so only
// genuine overrides are stored.
func ImportDocument(platform string, doc *Document) (*ImportedMapping, error) {
	d, err := GenerateDefaultMapping(platform)
	if err != nil {
		return nil, err
	}
	return &ImportedMapping{
		CoreFieldMapping:      Compact(doc.CoreFields, d.CoreFieldMapping),
		ExtensionFieldMapping: Compact(doc.ExtensionFields, d.ExtensionFieldMapping),
		ValidationRules:       doc.ValidationRules,
	}, nil
}

// Encode serializes a document as UTF-8 text in the given format.
func Encode(doc *Document, format string) ([]byte, string, error) {
	switch format {
	case "", FormatJSON:
		b, err := json.MarshalIndent(doc, "", "  ")
		return b, "application/json", err
	case FormatYAML:
		b, err := yaml.Marshal(doc)
		return b, "application/yaml", err
	default:
		return nil, "", &domain.ErrValidation{Field: "format", Message: fmt.Sprintf("unsupported format '%s'", format)}
	}
}

// Decode parses a document. All three sections are required.
func Decode(data []byte, format string) (*Document, error) {
	var raw rawDocument
	var err error
	switch format {
	case "", FormatJSON:
		err = json.Unmarshal(data, &raw)
	case FormatYAML:
		err = yaml.Unmarshal(data, &raw)
	default:
		return nil, &domain.ErrValidation{Field: "format", Message: fmt.Sprintf("unsupported format '%s'", format)}
	}
	if err != nil {
		return nil, &domain.ErrValidation{Field: "document", Message: err.Error()}
	}

	switch {
	case raw.CoreFields == nil:
		return nil, &domain.ErrValidation{Field: "core_fields", Message: "required"}
	case raw.ExtensionFields == nil:
		return nil, &domain.ErrValidation{Field: "extension_fields", Message: "required"}
	case raw.ValidationRules == nil:
		return nil, &domain.ErrValidation{Field: "validation_rules", Message: "required"}
	}

	return &Document{
		CoreFields:      raw.CoreFields,
		ExtensionFields: raw.ExtensionFields,
		ValidationRules: *raw.ValidationRules,
	}, nil
}
