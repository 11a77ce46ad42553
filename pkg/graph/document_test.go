package graph

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDocumentRejectsInvalidUTF8(t *testing.T) {
	_, err := NewDocument("d1", "valid \xff\xfe invalid")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedInput))
}

func TestDocumentSlice(t *testing.T) {
	doc, err := NewDocument("d1", "Harry married Ginny.")
	require.NoError(t, err)

	got, err := doc.Slice(0, 5)
	require.NoError(t, err)
	assert.Equal(t, "Harry", got)

	_, err = doc.Slice(-1, 5)
	assert.True(t, errors.Is(err, ErrMalformedInput))

	_, err = doc.Slice(0, 999)
	assert.True(t, errors.Is(err, ErrMalformedInput))

	_, err = doc.Slice(10, 5)
	assert.True(t, errors.Is(err, ErrMalformedInput))
}
