package compute

import "github.com/m-mizutani/goerr/v2"

// Sentinel errors returned by Evaluate. Callers match them with errors.Is.
var (
	ErrEmptyInput    = goerr.New("table has no weeks")
	ErrNegativeCount = goerr.New("negative case count")
	ErrZeroTotal     = goerr.New("week has zero total cases")
	ErrDuplicateWeek = goerr.New("duplicate week")
	ErrInvalidRule   = goerr.New("invalid alert rule")
	ErrCountOverflow = goerr.New("weekly total overflows")
)
