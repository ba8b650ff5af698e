package constants

// UnclassifiedFormType is the provisional type for pages carrying no
// recognizable form-header signal.
const UnclassifiedFormType = "UNCLASSIFIED"

// KnownFormTypes is the default trade-document vocabulary for boundary
// detection and LLM classification. Deployments can extend it via the
// vocabulary YAML file.
var KnownFormTypes = []string{
	"Letter of Credit",
	"Commercial Invoice",
	"Bill of Lading",
	"Packing List",
	"Certificate of Origin",
	"Bill of Exchange",
	"Insurance Certificate",
	"Mill Certificate",
	"Certificate of Weight",
	"Certificate from Shipping Company",
	"Shipping Guarantee",
	"SWIFT Message",
}
