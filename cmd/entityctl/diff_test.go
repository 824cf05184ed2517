package main

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type closeRecorder struct {
	bytes.Buffer
	closed   bool
	closeErr error
}

func (c *closeRecorder) Close() error {
	c.closed = true
	return c.closeErr
}

func TestWriteAndClose(t *testing.T) {
	diskFull := errors.New("disk full")

	t.Run("close error is returned", func(t *testing.T) {
		out := &closeRecorder{closeErr: diskFull}
		err := writeAndClose(out, func(w io.Writer) error {
			_, err := io.WriteString(w, "report")
			return err
		})
		require.ErrorIs(t, err, diskFull)
		assert.True(t, out.closed)
		assert.Equal(t, "report", out.String())
	})

	t.Run("write error wins", func(t *testing.T) {
		renderFailed := errors.New("render failed")
		out := &closeRecorder{closeErr: diskFull}
		err := writeAndClose(out, func(w io.Writer) error { return renderFailed })
		require.ErrorIs(t, err, renderFailed)
		assert.NotErrorIs(t, err, diskFull)
		assert.True(t, out.closed)
	})

	t.Run("clean close", func(t *testing.T) {
		out := &closeRecorder{}
		require.NoError(t, writeAndClose(out, func(w io.Writer) error { return nil }))
		assert.True(t, out.closed)
	})
}
