package mapping

import "github.com/lendgrid/export-profiles/internal/domain"

// RuleDescriptor documents a validation rule for editors.
type RuleDescriptor struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

var ruleDescriptors = []RuleDescriptor{
	{Name: "require_all_borrowers", Description: "Every borrower on the deal must be present in the export"},
	{Name: "require_subject_property", Description: "The deal must have a subject property"},
	{Name: "allow_partial_data", Description: "Missing optional data produces warnings instead of blocking the export"},
	{Name: "strict_enum_validation", Description: "Enumerated values must match the target schema exactly"},
	{Name: "require_signatures", Description: "Borrower signatures must be on file"},
}

// RuleDescriptors lists the validation rules in display order.
func RuleDescriptors() []RuleDescriptor {
	out := make([]RuleDescriptor, len(ruleDescriptors))
	copy(out, ruleDescriptors)
	return out
}

// ApplyRulesPatch overrides the rules named in patch. Rules are independent,
// so any combination is accepted.
func ApplyRulesPatch(base domain.ValidationRules, patch *domain.ValidationRulesPatch) domain.ValidationRules {
	if patch == nil {
		return base
	}
	if patch.RequireAllBorrowers != nil {
		base.RequireAllBorrowers = *patch.RequireAllBorrowers
	}
	if patch.RequireSubjectProperty != nil {
		base.RequireSubjectProperty = *patch.RequireSubjectProperty
	}
	if patch.AllowPartialData != nil {
		base.AllowPartialData = *patch.AllowPartialData
	}
	if patch.StrictEnumValidation != nil {
		base.StrictEnumValidation = *patch.StrictEnumValidation
	}
	if patch.RequireSignatures != nil {
		base.RequireSignatures = *patch.RequireSignatures
	}
	return base
}
