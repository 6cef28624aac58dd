package loader

import "github.com/m-mizutani/goerr/v2"

var (
	// ErrMissingColumn is returned when the header lacks a required column.
	ErrMissingColumn = goerr.New("required column missing")

	// ErrMalformedValue is returned for a count or week cell that cannot be parsed.
	ErrMalformedValue = goerr.New("malformed value")

	// ErrUnsupportedFormat is returned when no decoder matches the input.
	ErrUnsupportedFormat = goerr.New("unsupported format")

	// ErrNoData is returned when the input has no header row.
	ErrNoData = goerr.New("no data")
)
