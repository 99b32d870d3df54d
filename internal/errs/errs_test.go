package errs_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jroosing/labnet/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_MessageIsVerbatim(t *testing.T) {
	err := errs.New(errs.Conflict, "IP already allocated")
	assert.Equal(t, "IP already allocated", err.Error())
	assert.Equal(t, errs.Conflict, errs.KindOf(err))
}

func TestWrap_KeepsCause(t *testing.T) {
	cause := errors.New("exit status 1")
	err := errs.Wrap(errs.ExternalTool, cause, "failed to create bridge %q", "sw0")

	assert.Equal(t, `failed to create bridge "sw0": exit status 1`, err.Error())
	assert.ErrorIs(t, err, cause)
	assert.True(t, errs.Is(err, errs.ExternalTool))
}

func TestWrap_NilIsNil(t *testing.T) {
	assert.NoError(t, errs.Wrap(errs.Internal, nil, "ignored"))
}

func TestKindOf_ThroughFmtWrapping(t *testing.T) {
	inner := errs.New(errs.NotFound, "Zone does not exist")
	outer := fmt.Errorf("add record: %w", inner)
	assert.Equal(t, errs.NotFound, errs.KindOf(outer))
}

func TestKindOf_PlainErrorIsInternal(t *testing.T) {
	assert.Equal(t, errs.Internal, errs.KindOf(errors.New("boom")))
	assert.False(t, errs.Is(nil, errs.Internal))
}

func TestParseKind_RoundTrip(t *testing.T) {
	for _, k := range []errs.Kind{errs.Internal, errs.Validation, errs.Conflict, errs.NotFound, errs.ExternalTool, errs.Consistency} {
		require.Equal(t, k, errs.ParseKind(k.String()))
	}
	assert.Equal(t, errs.Internal, errs.ParseKind("something-else"))
}
