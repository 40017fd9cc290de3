// Package protocol encodes and decodes the flat delimited messages exchanged
// with the job server.
//
// A job is one request/response/report exchange:
//
//	worker -> server  REQUEST|8
//	server -> worker  0,49|50,99
//	worker -> server  SUCCESS|0000000042   or   FAILURE|
//
// A response with an empty field anywhere (including an empty response) means
// the server has no work left.
package protocol

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"github.com/screa/rangecrack/pkg/types"
)

// Default tokens
const (
	DefaultFieldSep   = "|"
	DefaultRangeSep   = ","
	DefaultRequestTag = "REQUEST"
	DefaultSuccessTag = "SUCCESS"
	DefaultFailureTag = "FAILURE"
)

// Errors
var (
	ErrNoWork           = errors.New("no work available")
	ErrMalformedRange   = errors.New("malformed range")
	ErrMalformedMessage = errors.New("malformed message")
	ErrInvalidCodec     = errors.New("invalid codec tokens")
)

// Codec holds the separator and tag tokens agreed with the server out of band.
type Codec struct {
	FieldSep   string
	RangeSep   string
	RequestTag string
	SuccessTag string
	FailureTag string
}

// DefaultCodec returns a codec using the default tokens.
func DefaultCodec() Codec {
	return Codec{
		FieldSep:   DefaultFieldSep,
		RangeSep:   DefaultRangeSep,
		RequestTag: DefaultRequestTag,
		SuccessTag: DefaultSuccessTag,
		FailureTag: DefaultFailureTag,
	}
}

// Validate checks that the tokens can produce unambiguous messages.
func (c Codec) Validate() error {
	tokens := map[string]string{
		"field separator": c.FieldSep,
		"range separator": c.RangeSep,
		"request tag":     c.RequestTag,
		"success tag":     c.SuccessTag,
		"failure tag":     c.FailureTag,
	}
	for name, tok := range tokens {
		if tok == "" {
			return fmt.Errorf("%w: empty %s", ErrInvalidCodec, name)
		}
	}
	if c.FieldSep == c.RangeSep {
		return fmt.Errorf("%w: field and range separators are both %q", ErrInvalidCodec, c.FieldSep)
	}
	if c.SuccessTag == c.FailureTag {
		return fmt.Errorf("%w: success and failure tags are both %q", ErrInvalidCodec, c.SuccessTag)
	}
	for name, sep := range map[string]string{"field separator": c.FieldSep, "range separator": c.RangeSep} {
		if strings.ContainsAny(sep, "0123456789") {
			return fmt.Errorf("%w: %s %q contains digits", ErrInvalidCodec, name, sep)
		}
	}
	return nil
}

// EncodeRequest builds the work request for the given parallelism.
func (c Codec) EncodeRequest(parallelism int) string {
	return strings.Join([]string{c.RequestTag, strconv.Itoa(parallelism)}, c.FieldSep)
}

// DecodeRequest parses a work request, returning the requested parallelism.
func (c Codec) DecodeRequest(msg string) (int, error) {
	tag, payload, ok := strings.Cut(trimMessage(msg), c.FieldSep)
	if !ok || tag != c.RequestTag {
		return 0, fmt.Errorf("%w: not a request: %q", ErrMalformedMessage, msg)
	}
	n, err := strconv.Atoi(payload)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: bad parallelism %q", ErrMalformedMessage, payload)
	}
	return n, nil
}

// DecodePartition parses a partition response. An empty field short-circuits with
// ErrNoWork; a field that is not exactly two non-negative integers with start <= end
// is ErrMalformedRange.
func (c Codec) DecodePartition(response string) (types.Partition, error) {
	fields := strings.Split(trimMessage(response), c.FieldSep)
	partition := make(types.Partition, 0, len(fields))
	for i, field := range fields {
		if field == "" {
			return nil, ErrNoWork
		}
		r, err := c.decodeRange(field)
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", i, err)
		}
		partition = append(partition, r)
	}
	return partition, nil
}

func (c Codec) decodeRange(field string) (types.Range, error) {
	parts := strings.Split(field, c.RangeSep)
	if len(parts) != 2 {
		return types.Range{}, fmt.Errorf("%w: %q has %d parts, want 2", ErrMalformedRange, field, len(parts))
	}
	start, err := parseEndpoint(parts[0])
	if err != nil {
		return types.Range{}, fmt.Errorf("%w: start of %q: %v", ErrMalformedRange, field, err)
	}
	end, err := parseEndpoint(parts[1])
	if err != nil {
		return types.Range{}, fmt.Errorf("%w: end of %q: %v", ErrMalformedRange, field, err)
	}
	if start.Cmp(end) > 0 {
		return types.Range{}, fmt.Errorf("%w: start exceeds end in %q", ErrMalformedRange, field)
	}
	return types.Range{Start: start, End: end}, nil
}

// parseEndpoint accepts plain base-10 digits only; big.Int.SetString would also
// take signs.
func parseEndpoint(s string) (*big.Int, error) {
	if s == "" {
		return nil, errors.New("empty")
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return nil, fmt.Errorf("%q is not a base-10 integer", s)
		}
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("%q is not a base-10 integer", s)
	}
	return n, nil
}

// EncodePartition is the inverse of DecodePartition. An empty partition encodes to
// the empty string, the no-work response.
func (c Codec) EncodePartition(p types.Partition) string {
	fields := lo.Map(p, func(r types.Range, _ int) string {
		return r.Start.String() + c.RangeSep + r.End.String()
	})
	return strings.Join(fields, c.FieldSep)
}

// EncodeOutcome builds the report sent after a search.
func (c Codec) EncodeOutcome(o types.Outcome) string {
	if o.Found {
		return strings.Join([]string{c.SuccessTag, o.Candidate}, c.FieldSep)
	}
	return strings.Join([]string{c.FailureTag, ""}, c.FieldSep)
}

// DecodeOutcome parses a report.
func (c Codec) DecodeOutcome(msg string) (types.Outcome, error) {
	tag, payload, ok := strings.Cut(trimMessage(msg), c.FieldSep)
	if !ok {
		return types.Outcome{}, fmt.Errorf("%w: no separator in %q", ErrMalformedMessage, msg)
	}
	switch {
	case tag == c.SuccessTag && payload != "":
		return types.Outcome{Found: true, Candidate: payload}, nil
	case tag == c.FailureTag && payload == "":
		return types.Outcome{}, nil
	default:
		return types.Outcome{}, fmt.Errorf("%w: bad report %q", ErrMalformedMessage, msg)
	}
}

func trimMessage(s string) string {
	return strings.TrimRight(s, "\r\n")
}
