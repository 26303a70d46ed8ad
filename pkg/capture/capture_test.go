package capture_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flapvw/vlinker-go/internal/iotest"
	"github.com/flapvw/vlinker-go/pkg/capture"
)

func TestRecorderWritesJournalLines(t *testing.T) {
	mock := iotest.NewMockStream()
	mock.Enqueue([]byte{0x01, 0x02, 0xAB})
	mock.Enqueue([]byte{0x03})

	var buf strings.Builder
	rec := capture.NewRecorder(mock, &buf)

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()
	err := rec.Run(ctx)
	require.NoError(t, err)

	records := rec.Records()
	require.Len(t, records, 2)
	assert.Equal(t, "R", records[0].Direction)
	assert.Equal(t, []byte{0x01, 0x02, 0xAB}, records[0].Data)
	assert.Equal(t, "0102AB", records[0].HexData())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	fields := strings.Split(lines[0], "\t")
	require.Len(t, fields, 3)
	_, perr := time.Parse("2006-01-02T15:04:05", fields[0])
	assert.NoError(t, perr)
	assert.Equal(t, "R", fields[1])
	assert.Equal(t, "0102AB", fields[2])
}

func TestParseJournalSkipsMalformedLines(t *testing.T) {
	text := "2026-01-01T00:00:00Z\tR\t0102\n" +
		"garbage line\n" +
		"2026-01-01T00:00:01Z\tR\tZZ\n" +
		"# a comment\n" +
		"2026-01-01T00:00:02Z\tR\tAABB\n"

	records := capture.ParseJournal(strings.NewReader(text))
	require.Len(t, records, 2)
	assert.Equal(t, []byte{0x01, 0x02}, records[0].Data)
	assert.Equal(t, []byte{0xAA, 0xBB}, records[1].Data)
}

func TestSnapshotRoundTrip(t *testing.T) {
	records := []capture.Record{
		{Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), Direction: "R", Data: []byte{0x67, 0x01, 0xAA}},
		{Timestamp: time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC), Direction: "R", Data: []byte{0x43, 0x01, 0x33, 0x00, 0x00}},
	}

	blob, err := capture.EncodeSnapshot(records)
	require.NoError(t, err)

	decoded, err := capture.DecodeSnapshot(blob)
	require.NoError(t, err)
	require.Len(t, decoded, 2)
	assert.True(t, decoded[0].Timestamp.Equal(records[0].Timestamp))
	assert.Equal(t, records[0].Data, decoded[0].Data)
	assert.Equal(t, records[1].Data, decoded[1].Data)
}
