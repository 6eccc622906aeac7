package shell

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyWaitingForInput(t *testing.T) {
	r := &Runner{Timeout: 500 * time.Millisecond}

	res, err := r.Run(context.Background(), "read answer; echo $answer", t.TempDir())
	require.NoError(t, err)
	require.True(t, res.TimedOut)
	assert.Equal(t, StallWaitingInput, res.Stall)
}

func TestClassifyStillComputing(t *testing.T) {
	r := &Runner{Timeout: 500 * time.Millisecond}

	res, err := r.Run(context.Background(), "while :; do :; done", t.TempDir())
	require.NoError(t, err)
	require.True(t, res.TimedOut)
	assert.Equal(t, StallStillComputing, res.Stall)
}

func TestReadStatParsesCommWithParens(t *testing.T) {
	state, pgrp, ok := readStat(1)
	if !ok {
		t.Skip("no /proc/1/stat")
	}
	assert.NotZero(t, state)
	assert.GreaterOrEqual(t, pgrp, 0)
}
