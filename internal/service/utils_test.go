package service

import (
	"testing"
	"time"
)

func TestParseClock(t *testing.T) {
	h, m, err := ParseClock("06:30")
	if err != nil || h != 6 || m != 30 {
		t.Fatalf("ParseClock(06:30) = %d, %d, %v", h, m, err)
	}

	for _, bad := range []string{"", "6", "24:00", "12:60", "ab:cd", "1:2:3"} {
		if _, _, err := ParseClock(bad); err == nil {
			t.Errorf("ParseClock(%q) should fail", bad)
		}
	}
}

func TestFormatInterval(t *testing.T) {
	cases := map[time.Duration]string{
		time.Minute:             "1m",
		5 * time.Minute:         "5m",
		time.Hour:               "1h",
		24 * time.Hour:          "1d",
		10 * time.Second:        "10s",
		1500 * time.Millisecond: "1.5s",
	}
	for d, want := range cases {
		if got := FormatInterval(d); got != want {
			t.Errorf("FormatInterval(%s) = %q, want %q", d, got, want)
		}
	}
}
