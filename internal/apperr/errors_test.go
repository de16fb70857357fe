package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsFindsWrappedError(t *testing.T) {
	base := New(CodeNotFound, "order not found")
	wrapped := fmt.Errorf("load: %w", base)

	typed := As(wrapped)
	require.NotNil(t, typed)
	assert.Equal(t, CodeNotFound, typed.Code())
	assert.True(t, IsCode(wrapped, CodeNotFound))
	assert.False(t, IsCode(wrapped, CodeForbidden))
}

func TestCodeOfUntypedIsInternal(t *testing.T) {
	assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
	assert.False(t, IsCode(nil, CodeInternal))
}

func TestMetadataFor(t *testing.T) {
	assert.Equal(t, http.StatusConflict, MetadataFor(CodeInsufficientStock).HTTPStatus)
	assert.Equal(t, http.StatusUnprocessableEntity, MetadataFor(CodeInvalidTransition).HTTPStatus)
	assert.False(t, MetadataFor(CodeInternal).DetailsAllowed)
	assert.Equal(t, http.StatusInternalServerError, MetadataFor(Code("nope")).HTTPStatus)
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Internal(cause, "insert order")

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "insert order")
	assert.Contains(t, err.Error(), "connection reset")
}

func TestDumpIncludesPgFields(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23514", ConstraintName: "products_available_quantity_check", TableName: "products"}
	err := Internal(fmt.Errorf("update stock: %w", pgErr), "reserve")

	d := Dump(err)
	assert.Equal(t, CodeInternal, d.Code)
	assert.Equal(t, "23514", d.PGCode)
	assert.Equal(t, "products_available_quantity_check", d.PGConstraint)
	assert.Len(t, d.Chain, 3)
}
