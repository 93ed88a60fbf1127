package workflow

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/knots/knots/internal/types"
)

func TestLoad_BuiltinProfilesAndLegacyAliases(t *testing.T) {
	registry, err := Load()
	require.NoError(t, err)

	_, err = registry.Require("autopilot")
	require.NoError(t, err)
	_, err = registry.Require("default")
	require.NoError(t, err)
	_, err = registry.Require("human_gate")
	require.NoError(t, err)
}

func TestLoad_NoPlanningProfileStartsAtReadyForImplementation(t *testing.T) {
	registry, err := Load()
	require.NoError(t, err)

	profile, err := registry.Require("autopilot_no_planning")
	require.NoError(t, err)
	require.Equal(t, types.StateReadyForImplementation, profile.InitialState)
	require.Equal(t, GateSkipped, profile.PlanningMode)
	for _, s := range profile.States {
		require.NotContains(t, string(s), "plan")
	}
}

func TestResolve_MissingProfileReference(t *testing.T) {
	registry, err := Load()
	require.NoError(t, err)

	_, err = registry.Resolve(nil)
	require.Error(t, err)
	var werr *Error
	require.ErrorAs(t, err, &werr)
	require.Equal(t, KindMissingProfileReference, werr.Kind)
}

func TestResolve_UnknownProfile(t *testing.T) {
	registry, err := Load()
	require.NoError(t, err)

	id := "not-a-real-profile"
	_, err = registry.Resolve(&id)
	require.Error(t, err)
	var werr *Error
	require.ErrorAs(t, err, &werr)
	require.Equal(t, KindUnknownProfile, werr.Kind)
}

func TestValidateTransition_ForceOverridesUnlistedTransition(t *testing.T) {
	registry, err := Load()
	require.NoError(t, err)
	profile, err := registry.Require("autopilot")
	require.NoError(t, err)

	err = profile.ValidateTransition(types.StateImplementation, types.StateImplementationReview, false)
	require.Error(t, err)

	err = profile.ValidateTransition(types.StateImplementation, types.StateImplementationReview, true)
	require.NoError(t, err)
}

func TestValidateTransition_WildcardAllowsDeferredAndAbandoned(t *testing.T) {
	registry, err := Load()
	require.NoError(t, err)
	profile, err := registry.Require("autopilot")
	require.NoError(t, err)

	for _, from := range profile.States {
		require.NoError(t, profile.ValidateTransition(from, types.StateDeferred, false))
		require.NoError(t, profile.ValidateTransition(from, types.StateAbandoned, false))
	}
}

func TestValidateTransition_CanonicalPathIsAccepted(t *testing.T) {
	registry, err := Load()
	require.NoError(t, err)
	profile, err := registry.Require("autopilot")
	require.NoError(t, err)

	require.NoError(t, profile.ValidateTransition(types.StateReadyForPlanning, types.StatePlanning, false))
	require.NoError(t, profile.ValidateTransition(types.StateShipmentReview, types.StateShipped, false))
}

func TestFromTOML_RejectsEmptyProfileList(t *testing.T) {
	_, err := FromTOML("")
	require.Error(t, err)
}
