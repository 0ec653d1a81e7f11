package bsatn

import "errors"

var (
	// ErrBufferTooShort is returned when a decode needs more bytes than the
	// buffer holds.
	ErrBufferTooShort = errors.New("bsatn: buffer too short")
	// ErrInvalidBool is returned when a bool byte is neither 0x00 nor 0x01.
	ErrInvalidBool = errors.New("bsatn: invalid bool byte")
	// ErrInvalidOptionTag is returned when an option tag byte is neither
	// 0x00 (some) nor 0x01 (none).
	ErrInvalidOptionTag = errors.New("bsatn: invalid option tag")
	// ErrInvalidSumTag is returned when a sum tag names no variant.
	ErrInvalidSumTag = errors.New("bsatn: invalid sum tag")
	// ErrOverflow is returned when a length or offset exceeds what the
	// surrounding data can hold.
	ErrOverflow = errors.New("bsatn: length overflow")
	// ErrInvalidUTF8 is reported by consumers that require valid UTF-8;
	// the codec itself never validates string bytes.
	ErrInvalidUTF8 = errors.New("bsatn: invalid utf-8")
	// ErrUnresolvedRef is returned when a decode or encode reaches a type
	// ref that was never resolved against a typespace.
	ErrUnresolvedRef = errors.New("bsatn: unresolved type ref")
)
