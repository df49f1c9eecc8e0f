package errors

import (
	"bytes"
	stderrors "errors"
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type mockCloser struct {
	closeErr error
	closed   bool
}

func (m *mockCloser) Close() error {
	m.closed = true
	return m.closeErr
}

func TestDeferClose(t *testing.T) {
	tests := []struct {
		name       string
		closer     io.Closer
		wantLogged bool
	}{
		{name: "nil closer"},
		{name: "successful close", closer: &mockCloser{}},
		{name: "close with error", closer: &mockCloser{closeErr: stderrors.New("close failed")}, wantLogged: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			DeferClose(zerolog.New(&buf), tt.closer, "failed to close body")

			assert.Equal(t, tt.wantLogged, buf.Len() > 0)
			if mc, ok := tt.closer.(*mockCloser); ok {
				assert.True(t, mc.closed)
			}
		})
	}
}

func TestCloseInto(t *testing.T) {
	writeErr := stderrors.New("write failed")
	closeErr := stderrors.New("disk gone")

	var err error
	CloseInto(&err, &mockCloser{}, "file")
	assert.NoError(t, err)

	err = writeErr
	CloseInto(&err, &mockCloser{closeErr: closeErr}, "file")
	assert.ErrorIs(t, err, writeErr)
	assert.ErrorIs(t, err, closeErr)
	assert.Contains(t, err.Error(), "failed to close file")

	err = nil
	CloseInto(&err, nil, "file")
	assert.NoError(t, err)
}

func TestMust(t *testing.T) {
	assert.NotPanics(t, func() { Must(nil, "init") })
	assert.PanicsWithValue(t, "init: boom", func() { Must(stderrors.New("boom"), "init") })
}
