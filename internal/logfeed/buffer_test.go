package logfeed

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcheng-dev/botconsole/internal/model"
)

func rec(i int) model.LogRecord {
	return model.LogRecord{
		TimeOfDay: "12:00:00",
		Message:   fmt.Sprintf("msg %d", i),
		Severity:  model.SeverityInfo,
		Category:  model.CategoryGeneric,
	}
}

func TestBufferCapEvictsOldest(t *testing.T) {
	b := NewBuffer(100)

	for i := 0; i < 100; i++ {
		b.Push(rec(i))
	}
	require.Equal(t, 100, b.Len())

	b.Push(rec(100))
	assert.Equal(t, 100, b.Len())

	got := b.Records()
	// Newest first; record 0 (the oldest) is gone, record 1 is now last.
	assert.Equal(t, "msg 100", got[0].Message)
	assert.Equal(t, "msg 1", got[99].Message)
}

func TestBufferReplaceTruncates(t *testing.T) {
	b := NewBuffer(3)
	b.Push(rec(0))

	batch := []model.LogRecord{rec(9), rec(8), rec(7), rec(6)}
	b.Replace(batch)

	got := b.Records()
	require.Len(t, got, 3)
	assert.Equal(t, "msg 9", got[0].Message)
	assert.Equal(t, "msg 7", got[2].Message)
}

func TestBufferRecordsReturnsCopy(t *testing.T) {
	b := NewBuffer(10)
	b.Push(rec(1))

	got := b.Records()
	got[0].Message = "mutated"

	assert.Equal(t, "msg 1", b.Records()[0].Message)
}
