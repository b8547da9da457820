package mapping

import (
	"github.com/lendgrid/export-profiles/internal/domain"
)

// DefaultMapping is what a freshly created profile starts from.
type DefaultMapping struct {
	CoreFieldMapping      domain.FieldMapping    `json:"core_fields"`
	ExtensionFieldMapping domain.FieldMapping    `json:"extension_fields"`
	ValidationRules       domain.ValidationRules `json:"validation_rules"`
}

// GenerateDefaultMapping builds the default mapping for a platform. It is a
// pure function: the same key always yields an equal mapping, and every call
// returns freshly allocated tables. Unknown keys are rejected.
func GenerateDefaultMapping(platformKey string) (DefaultMapping, error) {
	extFields, ok := ExtensionFields(platformKey)
	if !ok {
		return DefaultMapping{}, unknownPlatform(platformKey)
	}

	core := make(domain.FieldMapping, len(coreFields))
	for _, f := range coreFields {
		core[f.MismoName] = f.DefaultPath
	}

	ext := make(domain.FieldMapping, len(extFields))
	for _, f := range extFields {
		ext[f.FieldName] = f.DefaultPath
	}

	return DefaultMapping{
		CoreFieldMapping:      core,
		ExtensionFieldMapping: ext,
		ValidationRules:       DefaultValidationRules(platformKey),
	}, nil
}

// DefaultValidationRules returns the initial rule set for a platform. The
// generic MISMO export is the fallback path and tolerates partial data;
// named integrations feed a partner pipeline and demand complete data.
func DefaultValidationRules(platformKey string) domain.ValidationRules {
	return domain.ValidationRules{
		RequireAllBorrowers:    true,
		RequireSubjectProperty: true,
		AllowPartialData:       platformKey == PlatformMISMO34,
		StrictEnumValidation:   true,
		RequireSignatures:      false,
	}
}

func unknownPlatform(key string) error {
	return &domain.ErrValidation{Field: "platform", Message: "unknown platform '" + key + "'"}
}
