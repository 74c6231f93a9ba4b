package surveymonkey

import (
	"fmt"
)

// NotFoundError means no remote survey title contains the requested name.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("could not find survey %q in SurveyMonkey", e.Name)
}

// AmbiguousError is returned under the unique match policy when several
// remote surveys match.
type AmbiguousError struct {
	Name    string
	Matches []SurveyRef
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("survey name %q matches %d SurveyMonkey surveys", e.Name, len(e.Matches))
}

// TransportError wraps any network, HTTP status, envelope or decoding failure.
type TransportError struct {
	Endpoint   string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("surveymonkey %s: http %d: %v", e.Endpoint, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("surveymonkey %s: %v", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
