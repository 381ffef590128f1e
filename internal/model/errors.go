package model

import "github.com/rotisserie/eris"

// Error roots classifying every failure the pipeline can abort with. Stage
// and layer code wraps these with eris.Wrapf, naming the violated condition
// and the observed vs expected values; callers and tests classify with
// eris.Is. All four are fail-fast: nothing downstream runs once one is
// raised.
var (
	// ErrSchema: a required field or column is missing or has the wrong
	// shape.
	ErrSchema = eris.New("schema error")

	// ErrParse: a stored value cannot be converted to its semantic type.
	ErrParse = eris.New("parse error")

	// ErrInvariant: a postcondition that must hold after a transform does
	// not.
	ErrInvariant = eris.New("invariant violation")

	// ErrIntegrity: counts or keys disagree across a stage boundary.
	ErrIntegrity = eris.New("integrity error")
)

// ErrorKind returns a short label for the taxonomy root carried by err, or
// "" when err belongs to none of them.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case eris.Is(err, ErrSchema):
		return "schema"
	case eris.Is(err, ErrParse):
		return "parse"
	case eris.Is(err, ErrInvariant):
		return "invariant"
	case eris.Is(err, ErrIntegrity):
		return "integrity"
	default:
		return ""
	}
}
