// Package codec provides bounds-checked, big-endian (de)serialization
// primitives shared by every on-wire record in the messenger core.
package codec

import "fmt"

// ErrorCode names a codec failure kind, following the taxonomy in
// spec.md §7 (Codec.Truncated / BadMagic / UnsupportedVersion / Oversize).
type ErrorCode string

const (
	ErrTruncated          ErrorCode = "CODEC_TRUNCATED"
	ErrBadMagic           ErrorCode = "CODEC_BAD_MAGIC"
	ErrUnsupportedVersion ErrorCode = "CODEC_UNSUPPORTED_VERSION"
	ErrOversize           ErrorCode = "CODEC_OVERSIZE"
)

// Error is the typed error returned by every reader in this package.
type Error struct {
	Code ErrorCode
	Msg  string
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func codecErr(code ErrorCode, msg string) error {
	return &Error{Code: code, Msg: msg}
}

// Is reports whether target is an *Error with the same Code, so that
// errors.Is(err, codec.Sentinel(codec.ErrTruncated)) matches by code.
func (e *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == te.Code
}

// Sentinel returns a bare *Error carrying only a code, suitable for
// errors.Is comparisons, e.g. errors.Is(err, codec.Sentinel(codec.ErrTruncated)).
func Sentinel(code ErrorCode) error {
	return &Error{Code: code}
}
