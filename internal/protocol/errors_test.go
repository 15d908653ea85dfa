package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsKnownCode_AuditCodes(t *testing.T) {
	for _, c := range []string{"", ErrNotAuthority, ErrNotOwner, ErrNoPermission, ErrBlocked, ErrStale, ErrInternal} {
		require.True(t, IsKnownCode(c), c)
	}
	require.False(t, IsKnownCode("E_NOT_DEFINED"))
	require.False(t, IsKnownCode("not_owner"))
}
