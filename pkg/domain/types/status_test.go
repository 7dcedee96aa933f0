package types_test

import (
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/briareus/pkg/domain/types"
)

func TestNormalizeStatus(t *testing.T) {
	t.Run("spacing and case variants collapse to one status", func(t *testing.T) {
		for _, raw := range []string{"OnPhone", "on-phone", "ON_PHONE", "on phone", "onphone"} {
			gt.Value(t, types.NormalizeStatus(raw)).Equal(types.StatusOnACall)
		}
	})

	t.Run("known tokens map to canonical statuses", func(t *testing.T) {
		cases := map[string]types.Status{
			"available":            types.StatusAvailable,
			"online":               types.StatusAvailable,
			"active":               types.StatusAvailable,
			"dnd":                  types.StatusDoNotDisturb,
			"do not disturb":       types.StatusDoNotDisturb,
			"presenting":           types.StatusDoNotDisturb,
			"busy":                 types.StatusBusy,
			"in a meeting":         types.StatusInMeeting,
			"InAConferenceCall":    types.StatusInMeeting,
			"brb":                  types.StatusAway,
			"be right back":        types.StatusAway,
			"idle":                 types.StatusAway,
			"lunch":                types.StatusOnBreak,
			"offline":              types.StatusOffline,
			"invisible":            types.StatusOffline,
			"unknown":              types.StatusUnknown,
		}
		for raw, want := range cases {
			gt.Value(t, types.NormalizeStatus(raw)).Equal(want)
		}
	})

	t.Run("empty and whitespace-only input yields Offline", func(t *testing.T) {
		gt.Value(t, types.NormalizeStatus("")).Equal(types.StatusOffline)
		gt.Value(t, types.NormalizeStatus("   ")).Equal(types.StatusOffline)
	})

	t.Run("unrecognized input echoes back capitalized", func(t *testing.T) {
		gt.Value(t, types.NormalizeStatus("wrapping up")).Equal(types.Status("Wrapping up"))
		gt.Value(t, types.NormalizeStatus("SIDEBAR")).Equal(types.Status("SIDEBAR"))
		gt.String(t, types.NormalizeStatus("zzz").String()).Equal("Zzz")
	})

	t.Run("normalization is deterministic", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			gt.Value(t, types.NormalizeStatus("On The Phone")).Equal(types.StatusOnACall)
		}
	})
}

func TestNormalizerOverrides(t *testing.T) {
	n := types.NewNormalizer(map[string]types.Status{
		"wrapping up": types.StatusBusy,
		"busy":        types.StatusDoNotDisturb,
	})

	t.Run("override adds a new token", func(t *testing.T) {
		gt.Value(t, n.Normalize("Wrapping Up")).Equal(types.StatusBusy)
		gt.Value(t, n.Normalize("wrapping-up")).Equal(types.StatusBusy)
	})

	t.Run("override takes precedence over the built-in table", func(t *testing.T) {
		gt.Value(t, n.Normalize("busy")).Equal(types.StatusDoNotDisturb)
	})

	t.Run("built-ins still apply when not overridden", func(t *testing.T) {
		gt.Value(t, n.Normalize("available")).Equal(types.StatusAvailable)
	})
}

func TestStatusIsCanonical(t *testing.T) {
	for _, s := range types.AllStatuses() {
		gt.Bool(t, s.IsCanonical()).True()
	}
	gt.Bool(t, types.Status("Wrapping up").IsCanonical()).False()
}
