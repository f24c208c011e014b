package term

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScriptedKeyboardServesLinesInOrderThenEOF(t *testing.T) {
	k := NewScriptedKeyboard("ls", "cd /sub")

	line, err := k.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "ls", line)

	line, err = k.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "cd /sub", line)

	_, err = k.ReadLine()
	assert.ErrorIs(t, err, io.EOF)
}

func TestHeadlessKeyboardReadsUntilReaderExhausted(t *testing.T) {
	k := NewHeadlessKeyboard(bytes.NewBufferString("one\ntwo\n"))

	line, err := k.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "one", line)

	line, err = k.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "two", line)

	_, err = k.ReadLine()
	assert.Error(t, err)
}

func TestHeadlessSinkRejectsColorOutOfRange(t *testing.T) {
	var buf bytes.Buffer
	s := NewHeadlessSink(&buf)

	assert.False(t, s.Print(-1, "bad"))
	assert.False(t, s.Print(16, "bad"))
	assert.Empty(t, s.Logs)
	assert.Empty(t, buf.String())
}

func TestHeadlessSinkRecordsAndWritesThrough(t *testing.T) {
	var buf bytes.Buffer
	s := NewHeadlessSink(&buf)

	assert.True(t, s.Print(4, "hello"))
	assert.True(t, s.Print(0, "world"))

	require.Len(t, s.Logs, 2)
	assert.Equal(t, "[4] hello", s.Logs[0])
	assert.Equal(t, "[0] world", s.Logs[1])
	assert.Equal(t, "helloworld", buf.String())
}
