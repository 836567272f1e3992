package agents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCycleScoreBounded(t *testing.T) {
	hound := NewMacroHound(NewStaticProvider(), nil)
	handler := capability(t, hound, "macro.cycle_score").Handler

	raw, err := handler(context.Background(), testRC(), nil)
	require.NoError(t, err)

	result := raw.(map[string]interface{})
	score := result["score"].(float64)
	assert.GreaterOrEqual(t, score, 0.0)
	assert.LessOrEqual(t, score, 100.0)
	assert.Len(t, result["components"], len(macroWeights))
}

func TestCycleScoreDeterministic(t *testing.T) {
	hound := NewMacroHound(NewStaticProvider(), nil)
	handler := capability(t, hound, "macro.cycle_score").Handler

	first, err := handler(context.Background(), testRC(), nil)
	require.NoError(t, err)
	second, err := handler(context.Background(), testRC(), nil)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRegimeDetectWithExplicitScore(t *testing.T) {
	hound := NewMacroHound(NewStaticProvider(), nil)
	handler := capability(t, hound, "macro.regime_detect").Handler

	cases := map[float64]string{
		85: "expansion",
		60: "late_cycle",
		40: "slowdown",
		10: "contraction",
	}
	for score, want := range cases {
		raw, err := handler(context.Background(), testRC(), map[string]interface{}{"score": score})
		require.NoError(t, err)
		result := raw.(map[string]interface{})
		assert.Equal(t, want, result["regime"], "score %v", score)
		confidence := result["confidence"].(float64)
		assert.GreaterOrEqual(t, confidence, 0.5)
		assert.LessOrEqual(t, confidence, 1.0)
	}
}

func TestRegimeDetectComputesScoreWhenAbsent(t *testing.T) {
	hound := NewMacroHound(NewStaticProvider(), nil)
	handler := capability(t, hound, "macro.regime_detect").Handler

	raw, err := handler(context.Background(), testRC(), map[string]interface{}{})
	require.NoError(t, err)
	result := raw.(map[string]interface{})
	assert.Contains(t, []string{"expansion", "late_cycle", "slowdown", "contraction"}, result["regime"])
}
