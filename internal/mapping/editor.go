package mapping

import (
	"github.com/lendgrid/export-profiles/internal/domain"
)

// ============================================================
// Sparse mapping tables
// ============================================================

// SetMapping returns a copy of table with key mapped to path. Any path is
// accepted; paths are checked by the orchestrator at resolution time.
func SetMapping(table domain.FieldMapping, key, path string) domain.FieldMapping {
	out := table.Clone()
	out[key] = path
	return out
}

// ResetMapping returns a copy of table without an override for key, so the
// field falls back to its catalog default.
func ResetMapping(table domain.FieldMapping, key string) domain.FieldMapping {
	out := table.Clone()
	delete(out, key)
	return out
}

// ResolveField returns the stored override for key, or catalogDefault.
func ResolveField(overrides domain.FieldMapping, key, catalogDefault string) string {
	if path, ok := overrides[key]; ok {
		return path
	}
	return catalogDefault
}

// Merge layers overrides on top of defaults. Keys present only in overrides
// (org-defined fields) are kept.
func Merge(defaults, overrides domain.FieldMapping) domain.FieldMapping {
	out := make(domain.FieldMapping, len(defaults)+len(overrides))
	for k, v := range defaults {
		out[k] = ResolveField(overrides, k, v)
	}
	for k, v := range overrides {
		if _, ok := out[k]; !ok {
			out[k] = v
		}
	}
	return out
}

// Compact drops entries of table that equal their default, leaving only
// real overrides.
func Compact(table, defaults domain.FieldMapping) domain.FieldMapping {
	out := make(domain.FieldMapping)
	for k, v := range table {
		if d, ok := defaults[k]; ok && d == v {
			continue
		}
		out[k] = v
	}
	return out
}

// MergeCore resolves a stored core table against the catalog defaults.
func MergeCore(platform string, overrides domain.FieldMapping) (domain.FieldMapping, error) {
	defaults, err := GenerateDefaultMapping(platform)
	if err != nil {
		return nil, err
	}
	return Merge(defaults.CoreFieldMapping, overrides), nil
}

// MergeExtension resolves a stored extension table against the platform's
// extension catalog.
func MergeExtension(platform string, overrides domain.FieldMapping) (domain.FieldMapping, error) {
	defaults, err := GenerateDefaultMapping(platform)
	if err != nil {
		return nil, err
	}
	return Merge(defaults.ExtensionFieldMapping, overrides), nil
}

// ============================================================
// Extension namespace
// ============================================================

// NormalizeNamespace applies the default namespace to a blank value and
// validates the result: 1..10 ASCII letters or digits, case preserved.
func NormalizeNamespace(ns string) (string, error) {
	if ns == "" {
		return domain.DefaultExtensionNamespace, nil
	}
	if len(ns) > domain.MaxNamespaceLength {
		return "", &domain.ErrValidation{Field: "extension_namespace", Message: "must be at most 10 characters"}
	}
	for _, r := range ns {
		isLetter := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		isDigit := r >= '0' && r <= '9'
		if !isLetter && !isDigit {
			return "", &domain.ErrValidation{Field: "extension_namespace", Message: "must be alphanumeric"}
		}
	}
	return ns, nil
}

// QualifiedName prefixes an extension field with its namespace, e.g. "LG:DSCRRatio".
func QualifiedName(namespace, field string) string {
	return namespace + ":" + field
}

// Qualify returns the extension table keyed by qualified names.
func Qualify(namespace string, table domain.FieldMapping) domain.FieldMapping {
	out := make(domain.FieldMapping, len(table))
	for k, v := range table {
		out[QualifiedName(namespace, k)] = v
	}
	return out
}
