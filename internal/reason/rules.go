package reason

import "github.com/clinical-nlp/redact-engine/internal/span"

// Relation is the kind of constraint a Rule expresses between two types.
type Relation string

const (
	Exclusive  Relation = "EXCLUSIVE"
	Supportive Relation = "SUPPORTIVE"
)

// Rule is one cross-type constraint (spec.md §4.6): "<name, typeA, typeB,
// relation, strength, optional context regex, description>".
type Rule struct {
	Name          string
	TypeA, TypeB  span.FilterType
	Relation      Relation
	Strength      float64
	ContextRegexp string // empty means unconditional
	Description   string
}

// KConflict and KSupport scale a rule's strength into an actual confidence
// delta (spec.md §4.6).
const (
	KConflict = 0.25
	KSupport  = 0.10
)

// DefaultRules is the built-in rule set of spec.md §4.6.
var DefaultRules = []Rule{
	{"ssn-phone-exclusive", span.TypeSSN, span.TypePhone, Exclusive, 0.95, "", "SSN and phone number are mutually exclusive identifications of the same digit run"},
	{"date-age-exclusive", span.TypeDate, span.TypeAge, Exclusive, 0.90, "", "a date and an age rarely both describe the same figure"},
	{"mrn-zipcode-exclusive", span.TypeMRN, span.TypeZipcode, Exclusive, 0.80, "", "an MRN and a zipcode are distinct identifier families"},
	{"phone-fax-exclusive", span.TypePhone, span.TypeFax, Exclusive, 0.70, "", "a number is a phone or a fax, not both"},
	{"date-mrn-exclusive", span.TypeDate, span.TypeMRN, Exclusive, 0.75, "", "a date is not also a medical record number"},
	{"name-address-exclusive", span.TypeName, span.TypeAddress, Exclusive, 0.70, `(?i)\d+\s+[A-Za-z]+\s+(?:street|st|avenue|ave|road|rd)`, "a name does not double as a street address"},
	{"account-creditcard-exclusive", span.TypeAccount, span.TypeCreditCard, Exclusive, 0.85, "", "account and credit card numbers are distinct identifier families"},
	{"ip-phone-exclusive", span.TypeIP, span.TypePhone, Exclusive, 0.90, "", "an IP address is not a phone number"},
	{"name-medication-exclusive", span.TypeName, span.TypeCustom, Exclusive, 0.85, `(?i)\b(mg|mcg|tablet|dose|prescribed)\b`, "a name does not double as a medication mention"},
	{"ssn-mrn-exclusive", span.TypeSSN, span.TypeMRN, Exclusive, 0.85, "", "SSN and MRN are distinct identifier families"},

	{"name-date-dob-supportive", span.TypeName, span.TypeDate, Supportive, 0.30, `(?i)\bdob\b|\bdate of birth\b`, "a name near a DOB-labeled date reinforces both"},
	{"name-mrn-patient-supportive", span.TypeName, span.TypeMRN, Supportive, 0.35, `(?i)\bpatient\b`, "a name near an MRN in a patient context reinforces both"},
	{"address-zipcode-supportive", span.TypeAddress, span.TypeZipcode, Supportive, 0.40, "", "a street address near a zipcode is mutually reinforcing"},
	{"phone-name-contact-supportive", span.TypePhone, span.TypeName, Supportive, 0.25, `(?i)\bcontact\b`, "a phone number near a name in a contact context reinforces both"},
	{"email-name-supportive", span.TypeEmail, span.TypeName, Supportive, 0.30, "", "an email near a name reinforces both"},
	{"ssn-name-supportive", span.TypeSSN, span.TypeName, Supportive, 0.40, "", "an SSN near a name reinforces both"},
}

// Match reports whether r applies to the unordered type pair (a,b).
func (r Rule) Match(a, b span.FilterType) bool {
	return (r.TypeA == a && r.TypeB == b) || (r.TypeA == b && r.TypeB == a)
}
