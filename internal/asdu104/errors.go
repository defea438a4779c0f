// Package asdu104 implements the byte-exact IEC 60870-5-104 APCI and ASDU
// codec: frame parsing/building, the type identifiers needed by the
// collector, and the CP24Time2a/CP56Time2a binary time formats.
package asdu104

import "errors"

// ErrBadFormat is returned for malformed frames: wrong start byte, length
// mismatch, unknown type identifier, or truncated input. Decoding never
// partially succeeds; a frame either decodes fully or ErrBadFormat is
// returned.
var ErrBadFormat = errors.New("asdu104: bad format")

// ErrBadValue is returned when an ASDU's object count (1-127) or an
// APDU's length is outside its allowed range. Quality bits are not
// validated by this package.
var ErrBadValue = errors.New("asdu104: bad value")
