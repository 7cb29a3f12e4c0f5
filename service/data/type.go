package data

import (
	"fmt"
	"time"

	"github.com/khaledhikmat/objrec-go/model"
)

// IService stores diagnostics: errors and runtime stats. Observations are
// never stored.
type IService interface {
	NewError(err interface{}) error
	NewFramerStats(stats model.FramerStats) error
	NewClassifierStats(stats model.ClassifierStats) error
	NewDisplayStats(stats model.DisplayStats) error
	Close() error
}

type errorRecord struct {
	Timestamp  int64                  `json:"timestamp"`
	Processor  string                 `json:"processor"`
	Inner      string                 `json:"innerError"`
	Message    string                 `json:"message"`
	StackTrace string                 `json:"stackTrace"`
	Misc       map[string]interface{} `json:"misc"`
}

func toErrorRecord(err interface{}) errorRecord {
	rec := errorRecord{
		Timestamp:  time.Now().Unix(),
		Processor:  "N/A",
		StackTrace: "N/A",
	}

	switch e := err.(type) {
	case model.CustomError:
		rec.Processor = e.Processor
		rec.Message = e.Message
		rec.StackTrace = e.StackTrace
		rec.Misc = e.Misc
		if e.Inner != nil {
			rec.Inner = e.Inner.Error()
		}
	case error:
		rec.Inner = e.Error()
		rec.Message = e.Error()
	default:
		rec.Message = fmt.Sprintf("%v", e)
	}

	return rec
}
