package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractParametersTermination(t *testing.T) {
	text := "The Company may terminate this Agreement immediately without cause. " +
		"Either party may terminate for cause upon 30 days written notice and payment of $5,000."

	p := ExtractParameters(text)

	require.NotNil(t, p.DaysMentioned)
	assert.Equal(t, 30, *p.DaysMentioned)
	assert.Nil(t, p.MonthsMentioned)
	assert.Equal(t, []string{"$5,000"}, p.AmountsMentioned)
	assert.True(t, p.HasWrittenNotice)
	assert.True(t, p.IsMutual)
	assert.True(t, p.RequiresCause)
	assert.False(t, p.HasCap)

	assert.True(t, p.RawTextMarkers["contains_unilateral"])
	assert.True(t, p.RawTextMarkers["contains_either_party"])
	assert.True(t, p.RawTextMarkers["contains_without_cause"])
	assert.True(t, p.RawTextMarkers["contains_immediately"])
	assert.False(t, p.RawTextMarkers["contains_unlimited"])
}

func TestExtractParametersLiability(t *testing.T) {
	text := "Vendor shall be liable for all claims without limitation. " +
		"Liability shall not exceed the fees paid in the preceding 12 months."

	p := ExtractParameters(text)

	require.NotNil(t, p.MonthsMentioned)
	assert.Equal(t, 12, *p.MonthsMentioned)
	assert.True(t, p.HasCap)
	assert.True(t, p.RawTextMarkers["contains_unlimited"], "all claims marks unlimited exposure")
	assert.False(t, p.IsMutual)
}

func TestExtractParametersBusinessDays(t *testing.T) {
	p := ExtractParameters("within 10 business days of receipt")
	require.NotNil(t, p.DaysMentioned)
	assert.Equal(t, 10, *p.DaysMentioned)
}

func TestExtractParametersCurePeriod(t *testing.T) {
	p := ExtractParameters("the breaching party shall have thirty days to cure such breach")
	assert.True(t, p.HasCurePeriod)
}

func TestExtractParametersPure(t *testing.T) {
	text := "Either party may terminate upon 60 days written notice."
	a := ExtractParameters(text)
	b := ExtractParameters(text)
	assert.Equal(t, a, b)
}

func TestFormatParameters(t *testing.T) {
	days := 30
	p := ExtractParameters("placeholder")
	p.DaysMentioned = &days
	p.AmountsMentioned = []string{"$1,000", "$2,000"}
	p.IsMutual = true
	p.HasWrittenNotice = true
	p.HasCap = true

	out := FormatParameters(p)
	assert.Contains(t, out, "- Notice period: 30 days")
	assert.Contains(t, out, "- Amounts: $1,000, $2,000")
	assert.Contains(t, out, "- Mutual (either party)")
	assert.Contains(t, out, "- Written notice required")
	assert.Contains(t, out, "- Has liability cap")
}

func TestFormatParametersUnilateralDefault(t *testing.T) {
	out := FormatParameters(ExtractParameters("the quick brown fox"))
	assert.Contains(t, out, "- Unilateral (one party only)")
}
