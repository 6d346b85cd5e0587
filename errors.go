package toponym

import "errors"

// Sentinel errors returned by the package. Callers match them with errors.Is.
var (
	ErrOutOfRange    = errors.New("index out of range")
	ErrInvalidIndex  = errors.New("invalid candidate index")
	ErrCorpusBuilt   = errors.New("cannot add a source to a corpus that has already been built")
	ErrMalformedLine = errors.New("malformed line")
	ErrNoGazetteer   = errors.New("no backing gazetteer")
	ErrInvalidDPC    = errors.New("degrees per cell must be in (0, 180]")
	ErrNotTrained    = errors.New("resolver has not been trained")
)
