package dbf

import "github.com/pkg/errors"

var (
	ErrInvalidHeader    = errors.New("invalid dbf header")
	ErrInvalidField     = errors.New("invalid dbf field descriptor")
	ErrFieldNotFound    = errors.New("field not found")
	ErrRecordOutOfRange = errors.New("record out of range")
	ErrValueTooLong     = errors.New("value does not fit the field")
	ErrInvalidValue     = errors.New("invalid field value")
	ErrParseNumeric     = errors.New("not a number")
	ErrFieldCount       = errors.New("value count does not match field count")
)
