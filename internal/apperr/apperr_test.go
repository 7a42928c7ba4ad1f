package apperr

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSentinelsMatchByKind(t *testing.T) {
	err := NotFound("source %d", 7)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrValidation))
	assert.Equal(t, "source 7 not found", err.Error())

	wrapped := fmt.Errorf("refresh: %w", err)
	assert.True(t, errors.Is(wrapped, ErrNotFound))
	assert.Equal(t, KindNotFound, KindOf(wrapped))
}

func TestDuplicateMessage(t *testing.T) {
	err := Duplicate("source with url %q", "http://x")
	assert.Contains(t, err.Error(), "already exists")
	assert.True(t, errors.Is(err, ErrDuplicate))
}

func TestNetworkUnwrapsCause(t *testing.T) {
	err := Network("fetch http://x", io.ErrUnexpectedEOF)
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
	assert.True(t, errors.Is(err, ErrNetwork))
	assert.Equal(t, "fetch http://x: unexpected EOF", err.Error())
}

func TestDatabaseKeepsClassifiedErrors(t *testing.T) {
	nf := NotFound("channel 1")
	assert.Same(t, nf, Database("GetChannel", nf))
	assert.Nil(t, Database("GetChannel", nil))

	err := Database("GetChannel", io.EOF)
	assert.Equal(t, KindDatabase, KindOf(err))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{Validation("invalid url"), http.StatusBadRequest},
		{NotFound("x"), http.StatusNotFound},
		{Duplicate("x"), http.StatusConflict},
		{Conflict("busy"), http.StatusConflict},
		{SsrfBlocked("blocked"), http.StatusUnprocessableEntity},
		{Parse("bad xml", nil), http.StatusUnprocessableEntity},
		{Network("down", nil), http.StatusBadGateway},
		{Database("op", io.EOF), http.StatusInternalServerError},
		{io.EOF, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HTTPStatus(tt.err), tt.err.Error())
	}
}
