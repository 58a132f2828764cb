package utils_test

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/foldmerge/internal/utils"
)

func TestFlushingWriterFlushesBufferedDestination(testInstance *testing.T) {
	var sink bytes.Buffer
	buffered := bufio.NewWriterSize(&sink, 4096)
	writer := utils.NewFlushingWriter(buffered)

	written, writeError := writer.Write([]byte("widget archived\n"))

	require.NoError(testInstance, writeError)
	require.Equal(testInstance, len("widget archived\n"), written)
	require.Equal(testInstance, "widget archived\n", sink.String())
}

func TestNewFlushingWriterDoesNotWrapTwice(testInstance *testing.T) {
	var sink bytes.Buffer
	writer := utils.NewFlushingWriter(&sink)

	require.Same(testInstance, writer, utils.NewFlushingWriter(writer))
	require.Nil(testInstance, utils.NewFlushingWriter(nil))
}
