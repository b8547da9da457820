package mapping

import "github.com/lendgrid/export-profiles/internal/domain"

// Draft is an unsaved profile mapping being edited. It always holds full
// tables; Overrides reduces them to what gets stored.
type Draft struct {
	Platform              string
	CoreFieldMapping      domain.FieldMapping
	ExtensionFieldMapping domain.FieldMapping
	ValidationRules       domain.ValidationRules
}

// NewDraft starts a draft from the platform's generated defaults.
func NewDraft(platform string) (*Draft, error) {
	d := &Draft{}
	if err := d.SwitchPlatform(platform); err != nil {
		return nil, err
	}
	return d, nil
}

// SwitchPlatform replaces the whole mapping with the new platform's defaults.
// In-progress edits are discarded, not merged.
func (d *Draft) SwitchPlatform(platform string) error {
	defaults, err := GenerateDefaultMapping(platform)
	if err != nil {
		return err
	}
	d.Platform = platform
	d.CoreFieldMapping = defaults.CoreFieldMapping
	d.ExtensionFieldMapping = defaults.ExtensionFieldMapping
	d.ValidationRules = defaults.ValidationRules
	return nil
}

// Apply layers explicit overrides on the draft.
func (d *Draft) Apply(o *domain.MappingOverrides) {
	if o == nil {
		return
	}
	for k, v := range o.CoreFields {
		d.SetCoreField(k, v)
	}
	for k, v := range o.ExtensionFields {
		d.SetExtensionField(k, v)
	}
	d.ValidationRules = ApplyRulesPatch(d.ValidationRules, o.ValidationRules)
}

func (d *Draft) SetCoreField(key, path string) {
	d.CoreFieldMapping = SetMapping(d.CoreFieldMapping, key, path)
}

func (d *Draft) SetExtensionField(key, path string) {
	d.ExtensionFieldMapping = SetMapping(d.ExtensionFieldMapping, key, path)
}

// Overrides returns the sparse tables to persist: entries that differ from
// the platform defaults.
func (d *Draft) Overrides() (core, ext domain.FieldMapping) {
	defaults, err := GenerateDefaultMapping(d.Platform)
	if err != nil {
		// A draft can only hold a platform that generated successfully.
		return d.CoreFieldMapping.Clone(), d.ExtensionFieldMapping.Clone()
	}
	return Compact(d.CoreFieldMapping, defaults.CoreFieldMapping),
		Compact(d.ExtensionFieldMapping, defaults.ExtensionFieldMapping)
}
