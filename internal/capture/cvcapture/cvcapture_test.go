package cvcapture

import "testing"

func TestDevice(t *testing.T) {
	tests := []struct {
		locator string
		want    any
	}{
		{"0", 0},
		{"2", 2},
		{"rtsp://cam/stream", "rtsp://cam/stream"},
		{"video.mp4", "video.mp4"},
	}
	for _, tt := range tests {
		if got := device(tt.locator); got != tt.want {
			t.Errorf("device(%q) = %v (%T), want %v (%T)", tt.locator, got, got, tt.want, tt.want)
		}
	}
}
