package events

import (
	"bytes"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var _ asynq.Logger = Logger{}

func TestLoggerWritesLevels(t *testing.T) {
	var buf bytes.Buffer
	l := Logger{L: zerolog.New(&buf)}

	l.Info("worker ", "up")
	l.Warn("slow")
	l.Error("boom")

	out := buf.String()
	require.Contains(t, out, `"level":"info","message":"worker up"`)
	require.Contains(t, out, `"level":"warn","message":"slow"`)
	require.Contains(t, out, `"level":"error","message":"boom"`)
}
