package common

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCronExpression_SixFields(t *testing.T) {
	valid := []string{
		"0 0 2 * * ?",
		"0 */5 * * * ?",
		"30 15 10 ? * MON-FRI",
		"0 0 0 1 1 ?",
	}
	for _, expr := range valid {
		assert.NoError(t, ValidateCronExpression(expr), expr)
	}
}

func TestValidateCronExpression_SevenFieldsStripsYear(t *testing.T) {
	// Quartz allows an optional trailing year field; the runner ignores it
	assert.NoError(t, ValidateCronExpression("0 0 2 * * ? 2026"))
	assert.NoError(t, ValidateCronExpression("0 15 10 ? * MON-FRI 2026-2030"))
}

func TestValidateCronExpression_Rejected(t *testing.T) {
	invalid := []string{
		"",
		"* * * * *",       // five-field POSIX form
		"0 0 2 * *",       // five fields
		"0 0 2 * * ? ? ?", // too many fields
		"99 0 2 * * ?",    // out-of-range seconds
		"not a cron",
	}
	for _, expr := range invalid {
		assert.Error(t, ValidateCronExpression(expr), expr)
	}
}

func TestNextCronFire(t *testing.T) {
	from := time.Date(2026, 8, 25, 1, 30, 0, 0, time.UTC)

	next, err := NextCronFire("0 0 2 * * ?", from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 25, 2, 0, 0, 0, time.UTC), next)
}

func TestParseCronSchedule_YearFieldEquivalence(t *testing.T) {
	from := time.Date(2026, 8, 25, 1, 30, 0, 0, time.UTC)

	six, err := ParseCronSchedule("0 0 2 * * ?")
	require.NoError(t, err)
	seven, err := ParseCronSchedule("0 0 2 * * ? 2026")
	require.NoError(t, err)

	assert.Equal(t, six.Next(from), seven.Next(from))
}
