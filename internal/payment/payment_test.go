package payment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapProviderStatus(t *testing.T) {
	cases := []struct {
		in   string
		want Status
		ok   bool
	}{
		{"success", StatusCompleted, true},
		{"SUCCESSFUL", StatusCompleted, true},
		{"completed", StatusCompleted, true},
		{"failed", StatusFailed, true},
		{"pending", StatusProcessing, true},
		{"processing", StatusProcessing, true},
		{"cancelled", StatusCancelled, true},
		{"canceled", StatusCancelled, true},
		{"  Success  ", StatusCompleted, true},
		{"on_hold", "", false},
		{"", "", false},
	}

	for _, tc := range cases {
		got, ok := MapProviderStatus(tc.in)
		assert.Equalf(t, tc.ok, ok, "input %q", tc.in)
		if tc.ok {
			assert.Equalf(t, tc.want, got, "input %q", tc.in)
		}
	}
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusProcessing, true},
		{StatusPending, StatusCompleted, true},
		{StatusProcessing, StatusCompleted, true},
		{StatusProcessing, StatusFailed, true},
		{StatusCompleted, StatusRefunded, true},
		{StatusCompleted, StatusPartiallyRefunded, true},
		{StatusPartiallyRefunded, StatusRefunded, true},
		// a retried charge can still go through
		{StatusFailed, StatusProcessing, true},
		{StatusFailed, StatusCompleted, true},
		{StatusCancelled, StatusCompleted, true},
		// nothing moves backwards out of a settled payment
		{StatusCompleted, StatusProcessing, false},
		{StatusCompleted, StatusPending, false},
		{StatusCompleted, StatusFailed, false},
		{StatusRefunded, StatusCompleted, false},
		{StatusRefunded, StatusProcessing, false},
		{StatusPartiallyRefunded, StatusCompleted, false},
		// no self-edges
		{StatusProcessing, StatusProcessing, false},
		{StatusCompleted, StatusCompleted, false},
	}

	for _, tc := range cases {
		assert.Equalf(t, tc.want, CanTransition(tc.from, tc.to), "%s → %s", tc.from, tc.to)
	}
}

func TestStatusSucceeded(t *testing.T) {
	assert.True(t, StatusCompleted.Succeeded())
	assert.True(t, StatusRefunded.Succeeded())
	assert.True(t, StatusPartiallyRefunded.Succeeded())
	assert.False(t, StatusPending.Succeeded())
	assert.False(t, StatusProcessing.Succeeded())
	assert.False(t, StatusFailed.Succeeded())
	assert.False(t, StatusCancelled.Succeeded())
}

func TestStatusRefundable(t *testing.T) {
	assert.True(t, StatusCompleted.Refundable())
	assert.True(t, StatusPartiallyRefunded.Refundable())
	assert.False(t, StatusRefunded.Refundable())
	assert.False(t, StatusPending.Refundable())
}
