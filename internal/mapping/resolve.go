package mapping

import (
	"github.com/lendgrid/export-profiles/internal/domain"
)

// Resolve merges a stored profile with its platform catalog defaults and
// returns the view the export orchestrator consumes. It does not check
// IsActive; resolution policy lives in the service layer.
func Resolve(p *domain.MappingProfile) (*domain.ResolvedProfile, error) {
	core, err := MergeCore(p.Platform, p.CoreFieldMapping)
	if err != nil {
		return nil, err
	}
	ext, err := MergeExtension(p.Platform, p.ExtensionFieldMapping)
	if err != nil {
		return nil, err
	}

	ns := p.ExtensionNamespace
	if ns == "" {
		ns = domain.DefaultExtensionNamespace
	}

	return &domain.ResolvedProfile{
		ProfileID:                p.ID,
		ProfileName:              p.ProfileName,
		Platform:                 p.Platform,
		SchemaVersion:            p.SchemaVersion,
		ExtensionNamespace:       ns,
		CoreFields:               core,
		ExtensionFields:          ext,
		QualifiedExtensionFields: Qualify(ns, ext),
		RequiredCoreFields:       RequiredCoreFields(),
		ValidationRules:          p.ValidationRules,
		IsActive:                 p.IsActive,
	}, nil
}
