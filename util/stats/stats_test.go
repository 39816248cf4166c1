package stats

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecordAndReset(t *testing.T) {
	assert := assert.New(t)
	var op Op
	op.Record(time.Now().Add(-2 * time.Millisecond))
	op.Record(time.Now().Add(-2 * time.Millisecond))
	assert.Equal(uint32(2), op.Count())
	assert.GreaterOrEqual(op.MicrosPerOp(), 2000.0)
	op.Reset()
	assert.Equal(uint32(0), op.Count())
	assert.Equal(0.0, op.MicrosPerOp())
}

func TestFormatTable(t *testing.T) {
	ops := make([]Op, 2)
	ops[0].Record(time.Now())
	s := FormatTable([]string{"disk.Read", "disk.Write"}, ops)
	assert.Contains(t, s, "disk.Read")
	assert.Contains(t, s, "total")
}

func TestWriteCounters(t *testing.T) {
	buf := new(bytes.Buffer)
	WriteCounters([]string{"commits"}, []uint64{3}, buf)
	assert.Contains(t, buf.String(), "commits")
	assert.Contains(t, buf.String(), "3")
}

func TestMismatched(t *testing.T) {
	assert.Panics(t, func() {
		WriteTable([]string{"a"}, nil, new(bytes.Buffer))
	})
}
