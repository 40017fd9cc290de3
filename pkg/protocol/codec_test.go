package protocol

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/screa/rangecrack/pkg/types"
)

func bigRange(t *testing.T, start, end string) types.Range {
	t.Helper()
	s, ok := new(big.Int).SetString(start, 10)
	require.True(t, ok)
	e, ok := new(big.Int).SetString(end, 10)
	require.True(t, ok)
	return types.Range{Start: s, End: e}
}

func TestEncodeRequest(t *testing.T) {
	c := DefaultCodec()
	assert.Equal(t, "REQUEST|8", c.EncodeRequest(8))

	n, err := c.DecodeRequest("REQUEST|8\n")
	require.NoError(t, err)
	assert.Equal(t, 8, n)

	_, err = c.DecodeRequest("REQUEST|zero")
	assert.ErrorIs(t, err, ErrMalformedMessage)
	_, err = c.DecodeRequest("HELLO|3")
	assert.ErrorIs(t, err, ErrMalformedMessage)
}

func TestDecodePartition(t *testing.T) {
	c := DefaultCodec()

	p, err := c.DecodePartition("0,50|51,100")
	require.NoError(t, err)
	require.Len(t, p, 2)
	assert.Equal(t, int64(0), p[0].Start.Int64())
	assert.Equal(t, int64(50), p[0].End.Int64())
	assert.Equal(t, int64(51), p[1].Start.Int64())
	assert.Equal(t, int64(100), p[1].End.Int64())

	p, err = c.DecodePartition("7,7\r\n")
	require.NoError(t, err)
	require.Len(t, p, 1)
	assert.Equal(t, 0, p[0].Start.Cmp(p[0].End))
}

func TestDecodePartitionNoWork(t *testing.T) {
	c := DefaultCodec()
	for _, resp := range []string{"", "\n", "|", "0,5|", "|0,5", "0,5||6,9"} {
		_, err := c.DecodePartition(resp)
		assert.ErrorIs(t, err, ErrNoWork, "response %q", resp)
		assert.NotErrorIs(t, err, ErrMalformedRange, "response %q", resp)
	}
}

func TestDecodePartitionMalformed(t *testing.T) {
	c := DefaultCodec()
	tests := []struct {
		name string
		resp string
	}{
		{"single endpoint", "42"},
		{"three endpoints", "1,2,3"},
		{"empty start", ",5"},
		{"empty end", "5,"},
		{"negative", "-1,5"},
		{"plus sign", "+1,5"},
		{"not a number", "a,b"},
		{"hex", "0x10,0x20"},
		{"start after end", "10,5"},
		{"second field bad", "0,5|oops"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.DecodePartition(tt.resp)
			assert.ErrorIs(t, err, ErrMalformedRange)
			assert.NotErrorIs(t, err, ErrNoWork)
		})
	}
}

func TestPartitionRoundTripBeyondMachineWord(t *testing.T) {
	c := DefaultCodec()
	want := types.Partition{
		bigRange(t, "100000000000000", "199999999999999"),
		bigRange(t, "18446744073709551615", "18446744073709551700"),
		bigRange(t, "123456789012345678901234567890", "123456789012345678901234567899"),
	}

	encoded := c.EncodePartition(want)
	assert.Equal(t, "100000000000000,199999999999999|"+
		"18446744073709551615,18446744073709551700|"+
		"123456789012345678901234567890,123456789012345678901234567899", encoded)

	got, err := c.DecodePartition(encoded)
	require.NoError(t, err)
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, 0, want[i].Start.Cmp(got[i].Start), "start %d", i)
		assert.Equal(t, 0, want[i].End.Cmp(got[i].End), "end %d", i)
	}
}

func TestEmptyPartitionEncodesNoWork(t *testing.T) {
	c := DefaultCodec()
	_, err := c.DecodePartition(c.EncodePartition(nil))
	assert.ErrorIs(t, err, ErrNoWork)
}

func TestOutcome(t *testing.T) {
	c := DefaultCodec()

	assert.Equal(t, "SUCCESS|0000000042", c.EncodeOutcome(types.Outcome{Found: true, Candidate: "0000000042"}))
	assert.Equal(t, "FAILURE|", c.EncodeOutcome(types.Outcome{}))

	o, err := c.DecodeOutcome("SUCCESS|0000000042")
	require.NoError(t, err)
	assert.Equal(t, types.Outcome{Found: true, Candidate: "0000000042"}, o)

	o, err = c.DecodeOutcome("FAILURE|")
	require.NoError(t, err)
	assert.False(t, o.Found)

	for _, bad := range []string{"SUCCESS|", "FAILURE|123", "DONE|1", "SUCCESS"} {
		_, err := c.DecodeOutcome(bad)
		assert.ErrorIs(t, err, ErrMalformedMessage, bad)
	}
}

func TestCustomTokens(t *testing.T) {
	c := Codec{FieldSep: "#", RangeSep: ":", RequestTag: "req", SuccessTag: "yes", FailureTag: "no"}
	require.NoError(t, c.Validate())

	assert.Equal(t, "req#4", c.EncodeRequest(4))
	p, err := c.DecodePartition("1:2#3:4")
	require.NoError(t, err)
	assert.Len(t, p, 2)
	assert.Equal(t, "no#", c.EncodeOutcome(types.Outcome{}))
}

func TestValidate(t *testing.T) {
	assert.NoError(t, DefaultCodec().Validate())

	tests := []struct {
		name   string
		mutate func(*Codec)
	}{
		{"empty field sep", func(c *Codec) { c.FieldSep = "" }},
		{"same separators", func(c *Codec) { c.RangeSep = c.FieldSep }},
		{"same tags", func(c *Codec) { c.FailureTag = c.SuccessTag }},
		{"digit separator", func(c *Codec) { c.RangeSep = "0" }},
		{"empty request tag", func(c *Codec) { c.RequestTag = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultCodec()
			tt.mutate(&c)
			assert.ErrorIs(t, c.Validate(), ErrInvalidCodec)
		})
	}
}
