package model

import (
	"fmt"
	"runtime/debug"
	"time"
)

type CustomError struct {
	Processor  string                 `json:"processor"`
	Inner      error                  `json:"innerError"`
	Message    string                 `json:"message"`
	StackTrace string                 `json:"stackTrace"`
	Misc       map[string]interface{} `json:"misc"`
}

func (e CustomError) Error() string {
	if e.Inner == nil {
		return fmt.Sprintf("%s: %s", e.Processor, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Processor, e.Message, e.Inner)
}

func (e CustomError) Unwrap() error {
	return e.Inner
}

func GenError(proc string, err error, misc map[string]interface{}, messagef string, args ...interface{}) CustomError {
	return CustomError{
		Processor:  proc,
		Inner:      err,
		Message:    fmt.Sprintf(messagef, args...),
		StackTrace: string(debug.Stack()),
		Misc:       misc,
	}
}

// Observation is the best classification of one frame.
type Observation struct {
	Session    string    `json:"session"`
	Frame      int64     `json:"frame"`
	Label      string    `json:"label"`
	Confidence float32   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}

// DisplayState is what the screen shows. Only the display actor writes it.
type DisplayState struct {
	Label      string    `json:"label"`
	Confidence string    `json:"confidence"`
	Updated    time.Time `json:"updated"`
	Seq        int64     `json:"seq"`
}

type FramerStats struct {
	Name      string `json:"name"`
	Session   string `json:"session"`
	Source    string `json:"source"`
	FPS       int    `json:"fps"`
	Frames    int    `json:"frames"`
	Errors    int    `json:"errors"`
	Uptime    int64  `json:"uptime"`
	Timestamp int64  `json:"timestamp"`
}

type ClassifierStats struct {
	Name          string  `json:"name"`
	Frames        int     `json:"frames"`
	Observations  int     `json:"observations"`
	EmptyResults  int     `json:"emptyResults"`
	LoadFailures  int     `json:"loadFailures"`
	Errors        int     `json:"errors"`
	DroppedFrames int64   `json:"droppedFrames"`
	Uptime        int64   `json:"uptime"`
	AvgProcTime   float64 `json:"avgProcTime"`
	Timestamp     int64   `json:"timestamp"`
}

type DisplayStats struct {
	Name        string `json:"name"`
	Updates     int64  `json:"updates"`
	Subscribers int    `json:"subscribers"`
	Uptime      int64  `json:"uptime"`
	Timestamp   int64  `json:"timestamp"`
}
