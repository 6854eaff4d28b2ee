package uploader_test

import (
	"testing"
	"time"

	"syndicate/internal/testsupport"
	"syndicate/internal/uploader"
)

func TestBackoffDelayDoublesUntilCap(t *testing.T) {
	policy := uploader.BackoffPolicy{Base: 30 * time.Second, Cap: 1800 * time.Second}

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 30 * time.Second},
		{1, 30 * time.Second},
		{2, 60 * time.Second},
		{3, 120 * time.Second},
		{4, 240 * time.Second},
		{7, 1800 * time.Second},
		{50, 1800 * time.Second},
	}
	for _, tc := range cases {
		if got := policy.Delay(tc.attempt); got != tc.want {
			t.Fatalf("Delay(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestBackoffIsDeterministic(t *testing.T) {
	policy := uploader.PolicyFromConfig(testsupport.NewConfig(t))
	for attempt := 1; attempt <= 10; attempt++ {
		first := policy.Delay(attempt)
		second := policy.Delay(attempt)
		if first != second {
			t.Fatalf("Delay(%d) not deterministic: %v vs %v", attempt, first, second)
		}
	}
}
