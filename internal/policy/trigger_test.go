package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTrigger(t *testing.T) {
	tests := []struct {
		in   string
		want Trigger
	}{
		{"schedule", TriggerSchedule},
		{"SCHEDULE", TriggerSchedule},
		{"pull_request", TriggerPullRequest},
		{"Pull-Request", TriggerPullRequest},
		{"  push ", TriggerPush},
		{"Manual", TriggerManual},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTrigger(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseTrigger_Unknown(t *testing.T) {
	for _, in := range []string{"", "cron", "pullrequest"} {
		_, err := ParseTrigger(in)
		require.Error(t, err, "input %q", in)
		assert.True(t, IsValidationError(err))

		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, ErrCodeUnknownTrigger, ve.Code)
	}
}

func TestFoldName_NormalizesUnicode(t *testing.T) {
	composed := "r\u00e9sum\u00e9"
	decomposed := "re\u0301sume\u0301"
	assert.Equal(t, foldName(composed), foldName(decomposed))
	assert.Equal(t, foldName("Nightly"), foldName("NIGHTLY"))
}
