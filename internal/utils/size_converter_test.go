package utils

import "testing"

func TestConvertBytesToHumanReadable(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1 << 20, "1.0 MB"},
		{250 << 20, "250.0 MB"},
		{1 << 30, "1.0 GB"},
	}

	for _, tt := range tests {
		if got := ConvertBytesToHumanReadable(tt.bytes); got != tt.want {
			t.Errorf("ConvertBytesToHumanReadable(%d) = %q, want %q", tt.bytes, got, tt.want)
		}
	}
}

func TestConvertSpeedToHumanReadable(t *testing.T) {
	if got := ConvertSpeedToHumanReadable(0); got != "0 B/s" {
		t.Errorf("zero speed = %q", got)
	}
	if got := ConvertSpeedToHumanReadable(2 << 20); got != "2.0 MB/s" {
		t.Errorf("2 MiB/s = %q", got)
	}
}
