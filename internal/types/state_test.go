package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseKnotState_CanonicalAndAliases(t *testing.T) {
	s, err := ParseKnotState("ready_for_planning")
	require.NoError(t, err)
	require.Equal(t, StateReadyForPlanning, s)

	s, err = ParseKnotState("idea")
	require.NoError(t, err)
	require.Equal(t, StateReadyForPlanning, s)

	s, err = ParseKnotState("work_item")
	require.NoError(t, err)
	require.Equal(t, StateReadyForImplementation, s)

	s, err = ParseKnotState("implemented")
	require.NoError(t, err)
	require.Equal(t, StateReadyForImplementationReview, s)
}

func TestParseKnotState_CaseAndHyphenInsensitive(t *testing.T) {
	s, err := ParseKnotState(" Ready-For-Planning ")
	require.NoError(t, err)
	require.Equal(t, StateReadyForPlanning, s)
}

func TestParseKnotState_Unknown(t *testing.T) {
	_, err := ParseKnotState("not-a-real-state")
	require.Error(t, err)
}

func TestIsTerminal(t *testing.T) {
	require.True(t, StateShipped.IsTerminal())
	require.True(t, StateAbandoned.IsTerminal())
	require.False(t, StateDeferred.IsTerminal())
}
