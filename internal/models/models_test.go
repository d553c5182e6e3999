package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScoreToLevel(t *testing.T) {
	assert.Equal(t, RiskLevelLow, ScoreToLevel(0))
	assert.Equal(t, RiskLevelLow, ScoreToLevel(25))
	assert.Equal(t, RiskLevelMedium, ScoreToLevel(26))
	assert.Equal(t, RiskLevelMedium, ScoreToLevel(50))
	assert.Equal(t, RiskLevelHigh, ScoreToLevel(51))
	assert.Equal(t, RiskLevelHigh, ScoreToLevel(75))
	assert.Equal(t, RiskLevelCritical, ScoreToLevel(76))
	assert.Equal(t, RiskLevelCritical, ScoreToLevel(100))
}

func TestArbiterVerdictValidate(t *testing.T) {
	assert.NoError(t, (&ArbiterVerdict{RiskScore: 0}).Validate())
	assert.NoError(t, (&ArbiterVerdict{RiskScore: 100}).Validate())
	assert.Error(t, (&ArbiterVerdict{RiskScore: -1}).Validate())
	assert.Error(t, (&ArbiterVerdict{RiskScore: 150}).Validate())
}
