package event

import "time"

// Type identifies the kind of event.
type Type int

const (
	ScanComplete Type = iota + 1
	FileCopied
	FileSkipped
	FileFailed
	FileDeleted
	DirCreated
	Progress
)

var typeNames = [...]string{
	ScanComplete: "ScanComplete",
	FileCopied:   "FileCopied",
	FileSkipped:  "FileSkipped",
	FileFailed:   "FileFailed",
	FileDeleted:  "FileDeleted",
	DirCreated:   "DirCreated",
	Progress:     "Progress",
}

func (t Type) String() string {
	if int(t) < len(typeNames) && typeNames[t] != "" {
		return typeNames[t]
	}
	return "Unknown"
}

// Event represents a single progress event from a long-running operation.
type Event struct {
	Type      Type
	Timestamp time.Time
	Path      string // relative path
	Size      int64  // file or entry size in bytes
	Total     int64  // total files (ScanComplete)
	TotalSize int64  // total bytes (ScanComplete)
	Error     error
}

// Emit sends e on ch with a timestamp, dropping the event if ch is full
// or nil. Progress display is best-effort and must never block the
// operation that produces it.
func Emit(ch chan<- Event, e Event) {
	if ch == nil {
		return
	}
	e.Timestamp = time.Now()
	select {
	case ch <- e:
	default:
	}
}
