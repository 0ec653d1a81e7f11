package wire

import "errors"

var (
	// ErrEmptyFrame is returned for a zero-length server frame.
	ErrEmptyFrame = errors.New("wire: empty frame")
	// ErrUnknownCompression is returned for an unrecognized envelope byte.
	ErrUnknownCompression = errors.New("wire: unknown compression tag")
	// ErrDecompressionFailed wraps a failure inflating an enveloped frame.
	ErrDecompressionFailed = errors.New("wire: decompression failed")
	// ErrUnknownMessageTag is returned for an unrecognized server message tag.
	ErrUnknownMessageTag = errors.New("wire: unknown server message tag")
	// ErrUnknownRowSizeHint is returned for an unrecognized row list framing tag.
	ErrUnknownRowSizeHint = errors.New("wire: unknown row size hint")
	// ErrUnknownTableUpdateTag is returned for an unrecognized table update variant.
	ErrUnknownTableUpdateTag = errors.New("wire: unknown table update tag")
	// ErrUnknownReducerOutcome is returned for an unrecognized reducer outcome tag.
	ErrUnknownReducerOutcome = errors.New("wire: unknown reducer outcome")
	// ErrUnknownOneOffResult is returned for an unrecognized one-off query result tag.
	ErrUnknownOneOffResult = errors.New("wire: unknown one-off query result")
	// ErrUnknownProcedureStatus is returned for an unrecognized procedure status tag.
	ErrUnknownProcedureStatus = errors.New("wire: unknown procedure status")
)
