// Package mapping holds the static export catalogs (target platforms, MISMO
// core fields, extension fields) and the pure functions that generate,
// edit and resolve mapping tables. Nothing in this package performs I/O.
package mapping

// Platform keys.
const (
	PlatformMISMO34     = "MISMO_34"
	PlatformEncompass   = "Encompass"
	PlatformLendingPad  = "LendingPad"
	PlatformArive       = "Arive"
	PlatformLendingWise = "LendingWise"
	PlatformCustom      = "Custom"
)

// Primitive types an extension field may carry.
const (
	TypeDecimal  = "decimal"
	TypeCurrency = "currency"
	TypeString   = "string"
	TypeBoolean  = "boolean"
	TypeInteger  = "integer"
)

// Platform is a supported export target.
type Platform struct {
	Key         string `json:"key"`
	Label       string `json:"label"`
	Description string `json:"description"`
}

// CoreField is a canonical MISMO field with the internal path it maps to by default.
type CoreField struct {
	MismoName   string `json:"mismo_name"`
	DefaultPath string `json:"default_path"`
	Required    bool   `json:"required"`
}

// ExtensionField is a namespaced, non-standard field.
type ExtensionField struct {
	FieldName     string `json:"field_name"`
	DefaultPath   string `json:"default_path"`
	PrimitiveType string `json:"primitive_type"`
	Description   string `json:"description"`
}

var platforms = []Platform{
	{Key: PlatformMISMO34, Label: "MISMO 3.4 (Generic)", Description: "Standard MISMO 3.4 XML for any lender"},
	{Key: PlatformEncompass, Label: "Encompass", Description: "ICE Mortgage Technology Encompass LOS"},
	{Key: PlatformLendingPad, Label: "LendingPad", Description: "LendingPad cloud LOS"},
	{Key: PlatformArive, Label: "ARIVE", Description: "ARIVE mortgage platform"},
	{Key: PlatformLendingWise, Label: "LendingWise", Description: "LendingWise private lending LOS"},
	{Key: PlatformCustom, Label: "Custom", Description: "Organization-defined target"},
}

var coreFields = []CoreField{
	// Loan
	{MismoName: "LoanIdentifier", DefaultPath: "deal.deal_number", Required: true},
	{MismoName: "BaseLoanAmount", DefaultPath: "deal.loan_amount", Required: true},
	{MismoName: "NoteRatePercent", DefaultPath: "deal.interest_rate", Required: true},
	{MismoName: "LoanTermMonths", DefaultPath: "deal.loan_term_months", Required: true},
	{MismoName: "LoanPurposeType", DefaultPath: "deal.loan_purpose", Required: true},
	{MismoName: "AmortizationType", DefaultPath: "deal.amortization_type"},
	{MismoName: "LienPriorityType", DefaultPath: "deal.lien_position"},

	// Subject property
	{MismoName: "PropertyStreetAddress", DefaultPath: "property.address_street", Required: true},
	{MismoName: "PropertyCity", DefaultPath: "property.address_city", Required: true},
	{MismoName: "PropertyState", DefaultPath: "property.address_state", Required: true},
	{MismoName: "PropertyPostalCode", DefaultPath: "property.address_zip", Required: true},
	{MismoName: "PropertyType", DefaultPath: "property.property_type"},
	{MismoName: "PropertyEstimatedValueAmount", DefaultPath: "property.estimated_value"},
	{MismoName: "PropertyUnitCount", DefaultPath: "property.units"},

	// Borrower
	{MismoName: "BorrowerFirstName", DefaultPath: "borrower.first_name", Required: true},
	{MismoName: "BorrowerLastName", DefaultPath: "borrower.last_name", Required: true},
	{MismoName: "BorrowerEmail", DefaultPath: "borrower.email"},
	{MismoName: "BorrowerPhone", DefaultPath: "borrower.phone"},
	{MismoName: "BorrowerEntityName", DefaultPath: "borrower.entity_name"},
	{MismoName: "BorrowerCreditScore", DefaultPath: "borrower.credit_score"},
}

var baseExtensionFields = []ExtensionField{
	{FieldName: "DSCRRatio", DefaultPath: "deal.dscr", PrimitiveType: TypeDecimal, Description: "Debt service coverage ratio"},
	{FieldName: "LTVRatio", DefaultPath: "deal.ltv", PrimitiveType: TypeDecimal, Description: "Loan-to-value ratio"},
	{FieldName: "MonthlyPITIA", DefaultPath: "deal.monthly_pitia", PrimitiveType: TypeCurrency, Description: "Principal, interest, taxes, insurance and association dues"},
	{FieldName: "LoanProductType", DefaultPath: "deal.loan_product", PrimitiveType: TypeString, Description: "Internal loan product name"},
}

// Every platform has an explicit overlay entry, even when empty.
var platformOverlays = map[string][]ExtensionField{
	PlatformMISMO34: nil,
	PlatformEncompass: {
		{FieldName: "EncompassLoanGuid", DefaultPath: "deal.external_id", PrimitiveType: TypeString, Description: "Encompass loan GUID"},
	},
	PlatformLendingPad: {
		{FieldName: "LendingPadFileNumber", DefaultPath: "deal.external_id", PrimitiveType: TypeString, Description: "LendingPad file number"},
	},
	PlatformArive:       nil,
	PlatformLendingWise: nil,
	PlatformCustom:      nil,
}

// Platforms returns the platform catalog in display order.
func Platforms() []Platform {
	out := make([]Platform, len(platforms))
	copy(out, platforms)
	return out
}

// LookupPlatform finds a platform by its exact key.
func LookupPlatform(key string) (Platform, bool) {
	for _, p := range platforms {
		if p.Key == key {
			return p, true
		}
	}
	return Platform{}, false
}

// IsKnownPlatform reports whether key names a catalog platform.
func IsKnownPlatform(key string) bool {
	_, ok := LookupPlatform(key)
	return ok
}

// CoreFields returns the canonical core field catalog.
func CoreFields() []CoreField {
	out := make([]CoreField, len(coreFields))
	copy(out, coreFields)
	return out
}

// RequiredCoreFields lists the core fields that must resolve to a value under
// strict validation, in catalog order.
func RequiredCoreFields() []string {
	var out []string
	for _, f := range coreFields {
		if f.Required {
			out = append(out, f.MismoName)
		}
	}
	return out
}

// ExtensionFields returns the extension catalog for a platform: the shared
// base fields followed by the platform's overlay. Unknown platforms yield false.
func ExtensionFields(platform string) ([]ExtensionField, bool) {
	overlay, ok := platformOverlays[platform]
	if !ok {
		return nil, false
	}
	out := make([]ExtensionField, 0, len(baseExtensionFields)+len(overlay))
	out = append(out, baseExtensionFields...)
	out = append(out, overlay...)
	return out, true
}

// IsPrimitiveType reports whether t is a supported extension field type.
func IsPrimitiveType(t string) bool {
	switch t {
	case TypeDecimal, TypeCurrency, TypeString, TypeBoolean, TypeInteger:
		return true
	}
	return false
}
