package models

// MatchType identifies the strategy that produced a match candidate
type MatchType string

const (
	// MatchTypeExactEmail matches a contact that already owns the query email
	MatchTypeExactEmail MatchType = "exactEmail"
	// MatchTypeExactDomain matches a company that already owns the query domain
	MatchTypeExactDomain MatchType = "exactDomain"
	// MatchTypeExactIdentifier matches an entity that owns the query phone or LinkedIn URL
	MatchTypeExactIdentifier MatchType = "exactIdentifier"
	// MatchTypeFullName matches first and last name exactly
	MatchTypeFullName MatchType = "fullName"
	// MatchTypeSurnameInitial matches last name and first-name initial
	MatchTypeSurnameInitial MatchType = "surnameInitial"
	// MatchTypeSurname matches last name only
	MatchTypeSurname MatchType = "surname"
	// MatchTypeFirstNameDomain matches first name plus an email on the query domain
	MatchTypeFirstNameDomain MatchType = "firstNameDomain"
	// MatchTypeLinkedContact matches a company linked to a contact owning a sample email
	MatchTypeLinkedContact MatchType = "linkedContact"
	// MatchTypeFuzzyName matches a company name against the domain's base token
	MatchTypeFuzzyName MatchType = "fuzzyName"
	// MatchTypeDomain matches an email (or company domain) identifier on the query domain
	MatchTypeDomain MatchType = "domain"
	// MatchTypeManualSearch is a result of an explicit user-typed search
	MatchTypeManualSearch MatchType = "manualSearch"
)

// matchTypeTable is ordered: the position is the tie-break rank between equal scores.
var matchTypeTable = []struct {
	matchType MatchType
	score     int
}{
	{MatchTypeExactEmail, 100},
	{MatchTypeExactDomain, 100},
	{MatchTypeExactIdentifier, 100},
	{MatchTypeFullName, 90},
	{MatchTypeSurnameInitial, 85},
	{MatchTypeSurname, 60},
	{MatchTypeFirstNameDomain, 50},
	{MatchTypeLinkedContact, 45},
	{MatchTypeFuzzyName, 40},
	{MatchTypeDomain, 30},
	{MatchTypeManualSearch, 70},
}

// Score returns the fixed confidence score of the match type, 0 if unknown
func (m MatchType) Score() int {
	for _, row := range matchTypeTable {
		if row.matchType == m {
			return row.score
		}
	}
	return 0
}

// Rank returns the tie-break position of the match type. Lower ranks win ties;
// unknown types rank last.
func (m MatchType) Rank() int {
	for i, row := range matchTypeTable {
		if row.matchType == m {
			return i
		}
	}
	return len(matchTypeTable)
}

// MatchCandidate is an ephemeral scored suggestion that an entity matches a query.
// ConfidenceScore is derived from MatchType at construction and never changes.
type MatchCandidate struct {
	Entity          Entity    `json:"entity"`
	MatchType       MatchType `json:"match_type"`
	ConfidenceScore int       `json:"confidence_score"`
	MatchReasons    []string  `json:"match_reasons"`
}

// NewMatchCandidate builds a candidate whose score comes from the match type
func NewMatchCandidate(entity Entity, matchType MatchType, reasons ...string) MatchCandidate {
	return MatchCandidate{
		Entity:          entity,
		MatchType:       matchType,
		ConfidenceScore: matchType.Score(),
		MatchReasons:    append([]string(nil), reasons...),
	}
}

// NameSource records where a name guess came from
type NameSource string

const (
	NameSourceDisplayName           NameSource = "displayName"
	NameSourceEmailLocalPart        NameSource = "emailLocalPart"
	NameSourceEmailLocalPartReverse NameSource = "emailLocalPartReversed"
)

// NameCandidate is a (first, last) guess derived from an ambiguous raw input
type NameCandidate struct {
	FirstName string     `json:"first_name"`
	LastName  string     `json:"last_name"`
	Source    NameSource `json:"source"`
}
