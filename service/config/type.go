package config

const (
	SourceDevice = "device"
	SourceURL    = "url"
	SourceRandom = "random"

	PresetPhoto  = "photo"
	PresetHigh   = "high"
	PresetMedium = "medium"
	PresetLow    = "low"

	StoreFiles  = "files"
	StoreSQLite = "sqlite"
)

type CaptureParameters struct {
	Source string
	Device int
	URL    string
	Preset string
	// FPS only paces the random source. Real devices run at their own rate.
	FPS int
}

type ClassifierParameters struct {
	ModelPath   string
	ConfigPath  string
	LabelsPath  string
	InputSize   int
	ScaleFactor float64
	Mean        [3]float64
	SwapRB      bool
	Softmax     bool
	TopK        int
	WatchModel  bool
	// ConfidencePrecision < 0 keeps the unrounded default formatting
	ConfidencePrecision int
	Logging             bool
	LogPath             string
}

type WebParameters struct {
	Enabled           bool
	Port              int
	PreviewFPS        int
	PreviewQuality    int
	CaptureWhenHidden bool
}

// TraceParameters controls where classification spans are written.
type TraceParameters struct {
	Enabled bool
	Path    string
}

type IService interface {
	GetRunTimeEnv() string
	GetLogLevel() string
	GetModeMaxShutdownTime() int
	GetStatsPeriodicTimeout() int
	GetDataFolder() string
	GetDataStore() string
	GetSQLitePath() string
	GetCaptureParameters() CaptureParameters
	GetClassifierParameters() ClassifierParameters
	GetWebParameters() WebParameters
	GetTraceParameters() TraceParameters
}
