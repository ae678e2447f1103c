package catalogerr

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPStatusMapping(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, NewNoSuchNamespace([]string{"db"}).HTTPStatus())
	assert.Equal(t, http.StatusNotFound, NewNoSuchTable([]string{"db"}, "t").HTTPStatus())
	assert.Equal(t, http.StatusConflict, NewTableAlreadyExists([]string{"db"}, "t").HTTPStatus())
	assert.Equal(t, http.StatusConflict, NewCommitFailed("lost race").HTTPStatus())
	assert.Equal(t, http.StatusBadRequest, NewBadRequest("bad").HTTPStatus())
}

func TestMarshalJSONWireShape(t *testing.T) {
	err := NewNoSuchTable([]string{"db"}, "t")
	b, marshalErr := json.Marshal(err)
	require.NoError(t, marshalErr)

	var decoded struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    int    `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, "NoSuchTableException", decoded.Error.Type)
	assert.Equal(t, http.StatusNotFound, decoded.Error.Code)
	assert.Contains(t, decoded.Error.Message, "db")
}

func TestWrapPassesThroughExistingError(t *testing.T) {
	original := NewBadRequest("nope")
	wrapped := Wrap(original)
	assert.Same(t, original, wrapped)
}

func TestWrapCoercesPlainErrorToInternalServerError(t *testing.T) {
	plain := errors.New("disk on fire")
	wrapped := Wrap(plain)
	assert.Equal(t, InternalServerError, wrapped.Code)
	assert.ErrorIs(t, wrapped, plain)
	assert.Equal(t, http.StatusInternalServerError, wrapped.HTTPStatus())
}

func TestWrapCapturesUnderlyingTypeNameInWireType(t *testing.T) {
	plain := errors.New("disk on fire")
	wrapped := Wrap(plain)

	b, err := json.Marshal(wrapped)
	require.NoError(t, err)

	var decoded struct {
		Error struct {
			Type string `json:"type"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, "*errors.errorString", decoded.Error.Type)
}

func TestAsRecognizesCatalogError(t *testing.T) {
	_, ok := As(errors.New("plain"))
	assert.False(t, ok)

	ce, ok := As(NewValidation("bad schema"))
	require.True(t, ok)
	assert.Equal(t, Validation, ce.Code)
}

func TestNoSuchTableRefCarriesRefQualifier(t *testing.T) {
	err := NewNoSuchTableRef([]string{"db"}, "t", "main")
	assert.Equal(t, NoSuchTable, err.Code)
	assert.Contains(t, err.Message, "ref:main")
}
