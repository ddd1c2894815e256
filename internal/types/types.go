package types

import (
	"image"
	"time"
)

// Frame is a single decoded-then-reencoded video frame handed around as JPEG.
type Frame struct {
	Index    int
	Data     []byte
	Captured time.Time
}

// FaceResult is one face as reported by the Python worker.
type FaceResult struct {
	Loc []int     `json:"loc"` // [top, right, bottom, left]
	Vec []float64 `json:"vec"` // 128-d face encoding
}

// Rect converts the worker's [top, right, bottom, left] box into an image.Rectangle.
func (f FaceResult) Rect() image.Rectangle {
	if len(f.Loc) != 4 {
		return image.Rectangle{}
	}
	return image.Rect(f.Loc[3], f.Loc[0], f.Loc[1], f.Loc[2])
}

// Detection is a face found on a frame. Region is always in original-frame
// coordinates. Descriptor is nil for detectors that do not embed.
type Detection struct {
	Region     image.Rectangle
	Descriptor []float64
}

// KnownSubject is a registered employee loaded from a reference image.
type KnownSubject struct {
	Name      string
	Embedding []float64
	Source    string
}

// Unknown labels a face that matched no registered subject.
const Unknown = "Unknown"

// PresentStatus is the status written by the presence variant.
const PresentStatus = "Present"

// Date, time and timestamp layouts used in the ledger.
const (
	DateLayout      = "2006-01-02"
	TimeLayout      = "15:04:05"
	TimestampLayout = "2006-01-02 15:04:05"
)

// AttendanceEvent is one row of the identity ledger.
type AttendanceEvent struct {
	Name string `json:"name"`
	Date string `json:"date"`
	Time string `json:"time"`
}

// NewAttendanceEvent stamps name with the date and time-of-day of at.
func NewAttendanceEvent(name string, at time.Time) AttendanceEvent {
	return AttendanceEvent{
		Name: name,
		Date: at.Format(DateLayout),
		Time: at.Format(TimeLayout),
	}
}

// PresenceEvent is one row of the presence ledger.
type PresenceEvent struct {
	Timestamp string `json:"timestamp"`
	Status    string `json:"status"`
}

// NewPresenceEvent stamps a "Present" row at the given instant.
func NewPresenceEvent(at time.Time) PresenceEvent {
	return PresenceEvent{Timestamp: at.Format(TimestampLayout), Status: PresentStatus}
}
