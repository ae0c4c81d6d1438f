package graph

// Namespaces used by the startup-funding ontology.
const (
	NSEx   = "http://example.org/ontology#"
	NSRes  = "http://example.org/resource/"
	NSRDF  = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
	NSRDFS = "http://www.w3.org/2000/01/rdf-schema#"
	NSXSD  = "http://www.w3.org/2001/XMLSchema#"
)

// XSD datatypes the engine understands.
const (
	XSDString   = NSXSD + "string"
	XSDBoolean  = NSXSD + "boolean"
	XSDInteger  = NSXSD + "integer"
	XSDInt      = NSXSD + "int"
	XSDLong     = NSXSD + "long"
	XSDDecimal  = NSXSD + "decimal"
	XSDDouble   = NSXSD + "double"
	XSDFloat    = NSXSD + "float"
	XSDDate     = NSXSD + "date"
	XSDDateTime = NSXSD + "dateTime"
	XSDGYear    = NSXSD + "gYear"

	RDFLangString = NSRDF + "langString"
)

// Ontology classes.
var (
	ClassStartup      = Ex("Startup")
	ClassIndustry     = Ex("Industry")
	ClassFundingEvent = Ex("FundingEvent")
	ClassInvestor     = Ex("Investor")
	ClassCanton       = Ex("Canton")
	ClassCity         = Ex("City")
)

// Ontology properties.
var (
	RDFType = IRI(NSRDF + "type")

	PropName        = Ex("name")
	PropFoundedIn   = Ex("foundedIn")
	PropHighlights  = Ex("highlights")
	PropHasIndustry = Ex("hasIndustry")
	PropHasLocation = Ex("hasLocation")
	PropHasFunding  = Ex("hasFunding")
	PropPartOf      = Ex("partOf")
	PropIsIn        = Ex("isIn")

	PropAmount    = Ex("amount")
	PropPhase     = Ex("phase")
	PropType      = Ex("type")
	PropRoundDate = Ex("round_date")
	PropValuation = Ex("valuation")
	PropInvestor  = Ex("investor")
)

// Ex returns an IRI in the ontology namespace.
func Ex(local string) Term { return IRI(NSEx + local) }

// Res returns an IRI in the resource namespace.
func Res(local string) Term { return IRI(NSRes + local) }

// IsNumericType reports whether a datatype IRI denotes a number.
func IsNumericType(dt string) bool {
	switch dt {
	case XSDInteger, XSDInt, XSDLong, XSDDecimal, XSDDouble, XSDFloat,
		NSXSD + "short", NSXSD + "byte", NSXSD + "nonNegativeInteger",
		NSXSD + "positiveInteger", NSXSD + "negativeInteger", NSXSD + "nonPositiveInteger",
		NSXSD + "unsignedInt", NSXSD + "unsignedLong":
		return true
	}
	return false
}
