// Package pattern finds byte signatures in memory.
//
// A signature is a sequence of bytes in which some positions are
// wildcards, which allows a signature to match code whose operands
// (addresses, displacements) change from one build to the next. Signatures
// are usually written in the following notation, where "??" (or "?")
// matches any byte:
//
//	E8 ?? ?? ?? ?? 83 C4
//
// Scanner takes a snapshot of a module's memory and resolves Patterns
// against it. A Pattern of type Function resolves to the address where
// the signature starts. A Pattern of type Data resolves to the pointer
// stored inside the matched bytes, which is how a signature finds the
// address of a global variable referenced by an instruction.
package pattern

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const (
	// MaskExact marks a position that must match exactly.
	MaskExact = 'x'

	// MaskAny marks a wildcard position.
	MaskAny = '?'
)

var (
	// ErrInvalidPattern is returned when a Pattern's bytes or mask
	// are empty or malformed.
	ErrInvalidPattern = errors.New("invalid pattern")

	// ErrUnsupportedType is returned when a Pattern's Type is unknown.
	ErrUnsupportedType = errors.New("unsupported pattern type")

	// ErrUnsupportedAlgorithm is returned when a Pattern's Algorithm
	// is unknown.
	ErrUnsupportedAlgorithm = errors.New("unsupported search algorithm")
)

// Type determines how a match is turned into an address.
type Type int

const (
	// Function patterns resolve to the address of the match.
	Function Type = iota

	// Data patterns resolve to the pointer stored at the match
	// plus the Pattern's Offset.
	Data
)

func (o Type) String() string {
	switch o {
	case Function:
		return "function"
	case Data:
		return "data"
	default:
		return fmt.Sprintf("Type(%d)", int(o))
	}
}

// ParseType parses "function" or "data".
func ParseType(str string) (Type, error) {
	switch strings.ToLower(str) {
	case "function", "func":
		return Function, nil
	case "data":
		return Data, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedType, str)
	}
}

// Algorithm selects a byte search implementation.
type Algorithm int

const (
	// BoyerMooreHorspool skips ahead using a bad character table.
	BoyerMooreHorspool Algorithm = iota

	// Naive compares the pattern at every offset.
	Naive
)

func (o Algorithm) String() string {
	switch o {
	case BoyerMooreHorspool:
		return "bmh"
	case Naive:
		return "naive"
	default:
		return fmt.Sprintf("Algorithm(%d)", int(o))
	}
}

// ParseAlgorithm parses "bmh" or "naive".
func ParseAlgorithm(str string) (Algorithm, error) {
	switch strings.ToLower(str) {
	case "bmh", "boyer-moore-horspool", "boyermoorehorspool":
		return BoyerMooreHorspool, nil
	case "naive":
		return Naive, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, str)
	}
}

// Pattern is a byte signature plus the information needed to turn
// a match into an address.
type Pattern struct {
	// Name is optional. It is only used in error messages.
	Name string

	// Bytes are the bytes to match. Bytes at wildcard positions
	// are ignored.
	Bytes []byte

	// Mask has one character per byte: MaskExact or MaskAny.
	Mask string

	Type Type

	// Offset is the distance from the start of a match to the
	// pointer that a Data pattern resolves to.
	Offset int

	Algorithm Algorithm
}

// ParseOrExit calls Parse. It calls DefaultExitFn if an error occurs.
func ParseOrExit(signature string) Pattern {
	p, err := Parse(signature)
	if err != nil {
		DefaultExitFn(fmt.Errorf("pattern: failed to parse %q - %w", signature, err))
	}
	return p
}

// Parse parses a space-separated hex signature such as
// "E8 ?? ?? ?? ?? 83 C4". The resulting Pattern is a Function
// pattern searched with BoyerMooreHorspool.
func Parse(signature string) (Pattern, error) {
	fields := strings.Fields(signature)
	if len(fields) == 0 {
		return Pattern{}, fmt.Errorf("%w: signature is empty", ErrInvalidPattern)
	}

	b := make([]byte, len(fields))
	mask := make([]byte, len(fields))

	for i, field := range fields {
		if field == "?" || field == "??" {
			mask[i] = MaskAny
			continue
		}

		if len(field) != 2 {
			return Pattern{}, fmt.Errorf("%w: byte %d (%q) is not a hex pair",
				ErrInvalidPattern, i, field)
		}

		_, err := hex.Decode(b[i:i+1], []byte(field))
		if err != nil {
			return Pattern{}, fmt.Errorf("%w: byte %d (%q) - %v",
				ErrInvalidPattern, i, field, err)
		}

		mask[i] = MaskExact
	}

	return Pattern{
		Bytes: b,
		Mask:  string(mask),
	}, nil
}

// New returns a Function Pattern for b and mask after validating them.
func New(b []byte, mask string) (Pattern, error) {
	p := Pattern{
		Bytes: b,
		Mask:  mask,
	}

	_, err := p.wildcards()
	if err != nil {
		return Pattern{}, err
	}

	return p, nil
}

// String returns the signature in "E8 ?? 83" notation.
func (o Pattern) String() string {
	sb := strings.Builder{}

	for i := range o.Bytes {
		if i > 0 {
			sb.WriteByte(' ')
		}

		if i < len(o.Mask) && o.Mask[i] == MaskAny {
			sb.WriteString("??")
		} else {
			sb.WriteString(strings.ToUpper(hex.EncodeToString(o.Bytes[i : i+1])))
		}
	}

	return sb.String()
}

// Index returns the offset of the first match in haystack using the
// Pattern's Algorithm, or -1 if there is no match.
func (o Pattern) Index(haystack []byte) (int, error) {
	wild, err := o.wildcards()
	if err != nil {
		return -1, err
	}

	switch o.Algorithm {
	case BoyerMooreHorspool:
		return indexHorspool(haystack, o.Bytes, wild), nil
	case Naive:
		return indexNaive(haystack, o.Bytes, wild), nil
	default:
		return -1, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, o.Algorithm)
	}
}

// wildcards validates the Pattern's bytes and mask and returns
// a per-position wildcard table.
func (o Pattern) wildcards() ([]bool, error) {
	if len(o.Bytes) == 0 {
		return nil, fmt.Errorf("%w: pattern bytes are empty", ErrInvalidPattern)
	}

	if len(o.Mask) != len(o.Bytes) {
		return nil, fmt.Errorf("%w: mask length (%d) does not match pattern length (%d)",
			ErrInvalidPattern, len(o.Mask), len(o.Bytes))
	}

	wild := make([]bool, len(o.Mask))

	for i := 0; i < len(o.Mask); i++ {
		switch o.Mask[i] {
		case MaskExact:
		case MaskAny:
			wild[i] = true
		default:
			return nil, fmt.Errorf("%w: mask character %d is %q - expected '%c' or '%c'",
				ErrInvalidPattern, i, o.Mask[i], MaskExact, MaskAny)
		}
	}

	return wild, nil
}
