// Package domain defines the core entities of the export mapping engine.
// These models are independent of storage and transport and represent the
// canonical data structures used throughout the service.
package domain

import "time"

// ============================================================
// Mapping Profile
// ============================================================

// DefaultExtensionNamespace prefixes extension fields when a profile does not
// name its own namespace.
const DefaultExtensionNamespace = "LG"

// DefaultSchemaVersion is the descriptive schema version stamped on new profiles.
const DefaultSchemaVersion = "3.4"

// MaxNamespaceLength bounds the extension namespace token.
const MaxNamespaceLength = 10

// FieldMapping maps a field name to a dotted path in the internal data model
// (e.g. "deal.loan_amount"). Stored tables are sparse: only overrides of the
// catalog defaults are persisted.
type FieldMapping map[string]string

// Clone returns a deep copy. A nil mapping clones to an empty one.
func (m FieldMapping) Clone() FieldMapping {
	out := make(FieldMapping, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// ValidationRules is the set of independent policy switches the export
// orchestrator enforces before an export may proceed. No rule implies another.
type ValidationRules struct {
	RequireAllBorrowers    bool `json:"require_all_borrowers" yaml:"require_all_borrowers"`
	RequireSubjectProperty bool `json:"require_subject_property" yaml:"require_subject_property"`
	AllowPartialData       bool `json:"allow_partial_data" yaml:"allow_partial_data"`
	StrictEnumValidation   bool `json:"strict_enum_validation" yaml:"strict_enum_validation"`
	RequireSignatures      bool `json:"require_signatures" yaml:"require_signatures"`
}

// ValidationRulesPatch overrides individual rules; nil fields keep the base value.
type ValidationRulesPatch struct {
	RequireAllBorrowers    *bool `json:"require_all_borrowers,omitempty"`
	RequireSubjectProperty *bool `json:"require_subject_property,omitempty"`
	AllowPartialData       *bool `json:"allow_partial_data,omitempty"`
	StrictEnumValidation   *bool `json:"strict_enum_validation,omitempty"`
	RequireSignatures      *bool `json:"require_signatures,omitempty"`
}

// MappingProfile binds one target platform to a field mapping, an extension
// mapping and a validation rule set for a single organization.
type MappingProfile struct {
	ID                    string          `json:"id"`
	OrgID                 string          `json:"org_id"`
	ProfileName           string          `json:"profile_name"`
	Platform              string          `json:"platform"`
	SchemaVersion         string          `json:"schema_version"`
	ExtensionNamespace    string          `json:"extension_namespace"`
	IsActive              bool            `json:"is_active"`
	IsDefault             bool            `json:"is_default"`
	CoreFieldMapping      FieldMapping    `json:"core_field_mapping"`
	ExtensionFieldMapping FieldMapping    `json:"extension_field_mapping"`
	ValidationRules       ValidationRules `json:"validation_rules"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
	CreatedBy             string          `json:"created_by,omitempty"`
}

// Clone returns a deep copy of the profile, including both mapping tables.
func (p *MappingProfile) Clone() *MappingProfile {
	if p == nil {
		return nil
	}
	cp := *p
	cp.CoreFieldMapping = p.CoreFieldMapping.Clone()
	cp.ExtensionFieldMapping = p.ExtensionFieldMapping.Clone()
	return &cp
}

// ProfileFilter narrows a profile listing. Nil fields do not filter.
type ProfileFilter struct {
	IsDefault *bool
	IsActive  *bool
}

// Matches reports whether p satisfies the filter.
func (f ProfileFilter) Matches(p *MappingProfile) bool {
	if f.IsDefault != nil && p.IsDefault != *f.IsDefault {
		return false
	}
	if f.IsActive != nil && p.IsActive != *f.IsActive {
		return false
	}
	return true
}

// ============================================================
// Requests
// ============================================================

// MappingOverrides are explicit overrides applied on top of the generated
// platform defaults at creation time.
type MappingOverrides struct {
	CoreFields      FieldMapping          `json:"core_fields,omitempty"`
	ExtensionFields FieldMapping          `json:"extension_fields,omitempty"`
	ValidationRules *ValidationRulesPatch `json:"validation_rules,omitempty"`
}

// CreateProfileRequest is the input of a profile creation.
type CreateProfileRequest struct {
	ProfileName        string            `json:"profile_name"`
	Platform           string            `json:"platform"`
	SchemaVersion      string            `json:"schema_version,omitempty"`
	ExtensionNamespace string            `json:"extension_namespace,omitempty"`
	IsActive           *bool             `json:"is_active,omitempty"`
	IsDefault          bool              `json:"is_default"`
	Overrides          *MappingOverrides `json:"overrides,omitempty"`
}

// ProfileUpdate carries the mutable fields of a profile. Nil fields are left
// untouched; non-nil mapping tables replace the stored table wholesale.
type ProfileUpdate struct {
	ProfileName           *string          `json:"profile_name,omitempty"`
	Platform              *string          `json:"platform,omitempty"`
	SchemaVersion         *string          `json:"schema_version,omitempty"`
	ExtensionNamespace    *string          `json:"extension_namespace,omitempty"`
	IsActive              *bool            `json:"is_active,omitempty"`
	IsDefault             *bool            `json:"is_default,omitempty"`
	CoreFieldMapping      FieldMapping     `json:"core_field_mapping,omitempty"`
	ExtensionFieldMapping FieldMapping     `json:"extension_field_mapping,omitempty"`
	ValidationRules       *ValidationRules `json:"validation_rules,omitempty"`
}

// DeleteResult tells the caller what state the org is left in. The engine
// never promotes another profile when the default is deleted.
type DeleteResult struct {
	ID             string `json:"id"`
	DefaultRemoved bool   `json:"default_removed"`
	OrgHasDefault  bool   `json:"org_has_default"`
	// DefaultUnknown is set when the profile was deleted but the follow-up
	// default lookup failed; OrgHasDefault is then meaningless.
	DefaultUnknown bool `json:"default_unknown,omitempty"`
}

// ============================================================
// Resolution (consumed by the export orchestrator)
// ============================================================

// ResolvedProfile is a profile with both mapping tables merged with their
// catalog defaults, ready to drive document assembly.
type ResolvedProfile struct {
	ProfileID                string          `json:"profile_id"`
	ProfileName              string          `json:"profile_name"`
	Platform                 string          `json:"platform"`
	SchemaVersion            string          `json:"schema_version"`
	ExtensionNamespace       string          `json:"extension_namespace"`
	CoreFields               FieldMapping    `json:"core_fields"`
	ExtensionFields          FieldMapping    `json:"extension_fields"`
	QualifiedExtensionFields FieldMapping    `json:"qualified_extension_fields"`
	RequiredCoreFields       []string        `json:"required_core_fields"`
	ValidationRules          ValidationRules `json:"validation_rules"`
	IsActive                 bool            `json:"is_active"`
}
