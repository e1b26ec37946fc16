package apperrors

import "errors"

var (
	ErrNotFound              = errors.New("not found")
	ErrNotConnected          = errors.New("not connected to database")
	ErrCache                 = errors.New("schema cache error")
	ErrConfig                = errors.New("invalid configuration")
	ErrUnsupportedDatasource = errors.New("unsupported datasource type")
	ErrInvalidQuery          = errors.New("invalid query")
	ErrSuspiciousParameter   = errors.New("parameter failed injection screening")
)
