package scheduler

import (
	"testing"
	"time"

	"digest_server/core/domain"
)

func ts(t time.Time) *time.Time { return &t }

func TestIsDue(t *testing.T) {
	now := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		pref domain.SchedulePreference
		want bool
	}{
		{
			name: "never sent is always due",
			pref: domain.SchedulePreference{Frequency: domain.FrequencyDaily},
			want: true,
		},
		{
			name: "daily sent 24h ago",
			pref: domain.SchedulePreference{
				Frequency:  domain.FrequencyDaily,
				LastSentAt: ts(now.Add(-24 * time.Hour)),
			},
			want: true,
		},
		{
			name: "daily sent 22h ago not yet due",
			pref: domain.SchedulePreference{
				Frequency:  domain.FrequencyDaily,
				LastSentAt: ts(now.Add(-22 * time.Hour)),
			},
			want: false,
		},
		{
			name: "daily sent 23h ago due at threshold",
			pref: domain.SchedulePreference{
				Frequency:  domain.FrequencyDaily,
				LastSentAt: ts(now.Add(-23 * time.Hour)),
			},
			want: true,
		},
		{
			name: "weekly sent 6 days ago not due",
			pref: domain.SchedulePreference{
				Frequency:  domain.FrequencyWeekly,
				LastSentAt: ts(now.Add(-6 * 24 * time.Hour)),
			},
			want: false,
		},
		{
			name: "weekly sent 167h ago due",
			pref: domain.SchedulePreference{
				Frequency:  domain.FrequencyWeekly,
				LastSentAt: ts(now.Add(-167 * time.Hour)),
			},
			want: true,
		},
		{
			name: "biweekly sent 334h ago not due",
			pref: domain.SchedulePreference{
				Frequency:  domain.FrequencyBiweekly,
				LastSentAt: ts(now.Add(-334 * time.Hour)),
			},
			want: false,
		},
		{
			name: "monthly sent 720h ago due",
			pref: domain.SchedulePreference{
				Frequency:  domain.FrequencyMonthly,
				LastSentAt: ts(now.Add(-720 * time.Hour)),
			},
			want: true,
		},
		{
			name: "unknown frequency never due",
			pref: domain.SchedulePreference{
				Frequency:  domain.DigestFrequency("hourly"),
				LastSentAt: ts(now.Add(-1000 * time.Hour)),
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isDue(&tt.pref, now); got != tt.want {
				t.Errorf("isDue() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDeliveryHour(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"09:00", 9},
		{"00:30", 0},
		{"23:59", 23},
		{"7", 7},
		{"24:00", -1},
		{"garbage", -1},
		{"", -1},
	}
	for _, tt := range tests {
		if got := deliveryHour(tt.in); got != tt.want {
			t.Errorf("deliveryHour(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestHourInTimezone(t *testing.T) {
	// 14:00 UTC is 09:00 in New York during daylight saving time.
	now := time.Date(2026, 8, 28, 14, 0, 0, 0, time.UTC)

	if got := hourInTimezone(now, "America/New_York"); got != 9 {
		t.Errorf("hour in America/New_York = %d, want 9", got)
	}
	if got := hourInTimezone(now, "UTC"); got != 14 {
		t.Errorf("hour in UTC = %d, want 14", got)
	}
	// Unknown zones fall back to the default eastern zone.
	if got := hourInTimezone(now, "Not/AZone"); got != 9 {
		t.Errorf("hour in unknown zone = %d, want fallback 9", got)
	}
}

func TestShouldRunMatchesDeliveryHour(t *testing.T) {
	s := &Scheduler{}
	now := time.Date(2026, 8, 28, 14, 0, 0, 0, time.UTC)

	pref := &domain.SchedulePreference{
		Frequency:    domain.FrequencyDaily,
		DeliveryTime: "09:00",
		Timezone:     "America/New_York",
	}
	if !s.shouldRun(pref, now) {
		t.Error("shouldRun = false at the configured delivery hour")
	}

	pref.DeliveryTime = "10:00"
	if s.shouldRun(pref, now) {
		t.Error("shouldRun = true one hour before the delivery hour")
	}
}
