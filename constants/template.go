package constants

// NotFound is the sentinel a provider writes for a field it could not read.
const NotFound = "NOT_FOUND"

// Names of the form templates shipped in the built-in catalog.
const (
	TemplateBiodata     = "Biodata"
	TemplateAdmission   = "Admission"
	TemplateBankAccount = "Bank Account"
)
