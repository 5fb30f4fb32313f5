package classify

import "MarketScanner/internal/domain"

// Outcome is the result of classifying one article: exactly one of Parsed,
// SchemaError or TransportError.
type Outcome interface {
	isOutcome()
}

// Parsed carries a validated classification.
type Parsed struct {
	Article domain.ClassifiedArticle
}

// SchemaError means the model answered but never in the required shape.
type SchemaError struct {
	Candidate domain.Candidate
	Raw       string
	Err       error
}

// TransportError means the model could not be reached within the retry budget.
type TransportError struct {
	Candidate domain.Candidate
	Attempts  int
	Err       error
}

func (Parsed) isOutcome()         {}
func (SchemaError) isOutcome()    {}
func (TransportError) isOutcome() {}
