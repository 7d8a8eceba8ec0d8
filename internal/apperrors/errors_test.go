package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
		want bool
	}{
		{
			name: "direct match",
			err:  TriggerNotFound("no trigger"),
			code: CodeTriggerNotFound,
			want: true,
		},
		{
			name: "wrapped by fmt",
			err:  fmt.Errorf("failed to parse: %w", MissingChangeIndicator("no historyId")),
			code: CodeMissingChangeIndicator,
			want: true,
		},
		{
			name: "different kind",
			err:  Upload(errors.New("boom"), "deck.pdf"),
			code: CodeFetch,
			want: false,
		},
		{
			name: "plain error",
			err:  errors.New("boom"),
			code: CodeFetch,
			want: false,
		},
		{
			name: "nil error",
			err:  nil,
			code: CodeFetch,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsKind(tt.err, tt.code))
		})
	}
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(MalformedEnvelope("missing message", nil)))
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(MissingChangeIndicator("missing historyId")))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(Fetch(errors.New("timeout"), "failed to list messages")))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("plain")))
}

func TestWrapKeepsSource(t *testing.T) {
	source := errors.New("connection reset")
	err := CrmOperation(source, "search company")

	assert.True(t, errors.Is(err, source))
	assert.Contains(t, err.Error(), "search company failed")
	assert.Contains(t, err.Error(), "connection reset")

	var rich *goerrors.Error
	require.True(t, goerrors.As(err, &rich))
	assert.Equal(t, goerrors.CategoryExternal, rich.Category)
	assert.Equal(t, "search company", rich.Metadata["operation"])
}

func TestWithRequestID(t *testing.T) {
	err := WithRequestID(Fetch(errors.New("x"), "failed"), "req-1")

	var rich *goerrors.Error
	require.True(t, goerrors.As(err, &rich))
	assert.Equal(t, "req-1", rich.RequestID)

	plain := errors.New("plain")
	assert.Equal(t, plain, WithRequestID(plain, "req-1"))
}
