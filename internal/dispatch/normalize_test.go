package dispatch

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalize_StripsAndPrefixes(t *testing.T) {
	got, err := Normalize("(11) 98888-7777", "55")
	require.NoError(t, err)
	require.Equal(t, "5511988887777", got)
}

func TestNormalize_KeepsExistingPrefix(t *testing.T) {
	got, err := Normalize("+55 11 98888-7777", "55")
	require.NoError(t, err)
	require.Equal(t, "5511988887777", got)
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{"(11) 98888-7777", "+55 11 98888-7777", "5511988887777", "98888 7777"}
	for _, in := range inputs {
		once, err := Normalize(in, "55")
		require.NoError(t, err)
		twice, err := Normalize(once, "55")
		require.NoError(t, err)
		require.Equal(t, once, twice, "input %q", in)
		require.Regexp(t, `^55[0-9]+$`, twice)
	}
}

func TestNormalize_EmptyFails(t *testing.T) {
	for _, in := range []string{"", "   ", "abc", "+-()"} {
		_, err := Normalize(in, "55")
		require.ErrorIs(t, err, ErrBadDestination, "input %q", in)
	}
}
