package model

// ClassificationMethod indicates which waterfall stage assigned the category.
type ClassificationMethod string

// Classification method constants.
const (
	MethodDataRule      ClassificationMethod = "DataRule"
	MethodFuzzyMatch    ClassificationMethod = "FuzzyMatch"
	MethodSemanticMatch ClassificationMethod = "SemanticMatch"
	MethodDefault       ClassificationMethod = "Default"
)

// MissingInput records which dispute input was unavailable to the waterfall.
type MissingInput string

// Missing input kinds.
const (
	MissingNone      MissingInput = ""
	MissingReference MissingInput = "MissingReference"
	MissingText      MissingInput = "MissingText"
)

// Evidence captures what triggered a classification.
type Evidence struct {
	TransactionID     string
	DuplicateOf       string
	MatchedKeyword    string
	Exemplar          string
	TransactionStatus string
	Missing           []MissingInput
	FuzzyScore        int
	Similarity        float64
	Corroborated      bool
}

// HasMissing reports whether the given input kind was recorded as missing.
func (e Evidence) HasMissing(kind MissingInput) bool {
	for _, m := range e.Missing {
		if m == kind {
			return true
		}
	}
	return false
}

// ClassificationResult is the waterfall outcome for one dispute. Status
// carries the dispute's case status so reviewers can track it alongside the
// category.
type ClassificationResult struct {
	DisputeID   string
	Category    Category
	Method      ClassificationMethod
	Explanation string
	Status      DisputeStatus
	Evidence    Evidence
	Confidence  float64
}
