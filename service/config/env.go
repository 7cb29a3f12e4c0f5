package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/khaledhikmat/objrec-go/service/lgr"
)

// envService reads settings from the environment and falls back to the
// hardcoded defaults for anything unset or unparsable.
type envService struct {
	defaults IService
	lookup   func(string) (string, bool)
}

func NewEnv() IService {
	return newEnvWithLookup(os.LookupEnv)
}

func newEnvWithLookup(lookup func(string) (string, bool)) IService {
	return &envService{
		defaults: NewHardCoded(),
		lookup:   lookup,
	}
}

func (svc *envService) GetRunTimeEnv() string {
	return svc.str("RUN_TIME_ENV", svc.defaults.GetRunTimeEnv())
}

func (svc *envService) GetLogLevel() string {
	return svc.str("LOG_LEVEL", svc.defaults.GetLogLevel())
}

func (svc *envService) GetModeMaxShutdownTime() int {
	return svc.integer("MODE_MAX_SHUTDOWN_TIME", svc.defaults.GetModeMaxShutdownTime())
}

func (svc *envService) GetStatsPeriodicTimeout() int {
	return svc.integer("STATS_PERIODIC_TIMEOUT", svc.defaults.GetStatsPeriodicTimeout())
}

func (svc *envService) GetDataFolder() string {
	return svc.str("DATA_FOLDER", svc.defaults.GetDataFolder())
}

func (svc *envService) GetDataStore() string {
	store := strings.ToLower(svc.str("DATA_STORE", svc.defaults.GetDataStore()))
	if store != StoreFiles && store != StoreSQLite {
		lgr.Logger.Warn("unknown data store, using default", slog.String("store", store))
		return svc.defaults.GetDataStore()
	}
	return store
}

func (svc *envService) GetSQLitePath() string {
	return svc.str("SQLITE_PATH", svc.GetDataFolder()+"/objrec.db")
}

func (svc *envService) GetCaptureParameters() CaptureParameters {
	p := svc.defaults.GetCaptureParameters()
	p.Source = strings.ToLower(svc.str("CAPTURE_SOURCE", p.Source))
	p.Device = svc.integer("CAPTURE_DEVICE", p.Device)
	p.URL = svc.str("CAPTURE_URL", p.URL)
	p.Preset = strings.ToLower(svc.str("CAPTURE_PRESET", p.Preset))
	p.FPS = svc.integer("CAPTURE_FPS", p.FPS)
	return p
}

func (svc *envService) GetClassifierParameters() ClassifierParameters {
	p := svc.defaults.GetClassifierParameters()
	p.ModelPath = svc.str("MODEL_PATH", p.ModelPath)
	p.ConfigPath = svc.str("MODEL_CONFIG_PATH", p.ConfigPath)
	p.LabelsPath = svc.str("MODEL_LABELS_PATH", p.LabelsPath)
	p.InputSize = svc.integer("MODEL_INPUT_SIZE", p.InputSize)
	p.ScaleFactor = svc.float("MODEL_SCALE", p.ScaleFactor)
	p.Mean = svc.triple("MODEL_MEAN", p.Mean)
	p.SwapRB = svc.boolean("MODEL_SWAP_RB", p.SwapRB)
	p.Softmax = svc.boolean("MODEL_SOFTMAX", p.Softmax)
	p.TopK = svc.integer("MODEL_TOP_K", p.TopK)
	p.WatchModel = svc.boolean("MODEL_WATCH", p.WatchModel)
	p.ConfidencePrecision = svc.integer("CONFIDENCE_PRECISION", p.ConfidencePrecision)
	p.Logging = svc.boolean("OBSERVATION_LOG", p.Logging)
	p.LogPath = svc.str("OBSERVATION_LOG_PATH", p.LogPath)
	return p
}

func (svc *envService) GetWebParameters() WebParameters {
	p := svc.defaults.GetWebParameters()
	p.Enabled = svc.boolean("WEB_ENABLED", p.Enabled)
	p.Port = svc.integer("WEB_PORT", p.Port)
	p.PreviewFPS = svc.integer("WEB_PREVIEW_FPS", p.PreviewFPS)
	p.PreviewQuality = svc.integer("WEB_PREVIEW_QUALITY", p.PreviewQuality)
	p.CaptureWhenHidden = svc.boolean("CAPTURE_WHEN_HIDDEN", p.CaptureWhenHidden)
	return p
}

func (svc *envService) GetTraceParameters() TraceParameters {
	p := svc.defaults.GetTraceParameters()
	p.Enabled = svc.boolean("TRACE_ENABLED", p.Enabled)
	p.Path = svc.str("TRACE_PATH", p.Path)
	return p
}

func (svc *envService) str(key, def string) string {
	v, ok := svc.lookup(key)
	if !ok || strings.TrimSpace(v) == "" {
		return def
	}
	return strings.TrimSpace(v)
}

func (svc *envService) integer(key string, def int) int {
	v, ok := svc.lookup(key)
	if !ok || strings.TrimSpace(v) == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		lgr.Logger.Warn("invalid integer setting, using default",
			slog.String("key", key),
			slog.String("value", v),
			slog.Int("default", def),
		)
		return def
	}
	return n
}

func (svc *envService) float(key string, def float64) float64 {
	v, ok := svc.lookup(key)
	if !ok || strings.TrimSpace(v) == "" {
		return def
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		lgr.Logger.Warn("invalid float setting, using default",
			slog.String("key", key),
			slog.String("value", v),
		)
		return def
	}
	return f
}

func (svc *envService) boolean(key string, def bool) bool {
	v, ok := svc.lookup(key)
	if !ok || strings.TrimSpace(v) == "" {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		lgr.Logger.Warn("invalid boolean setting, using default",
			slog.String("key", key),
			slog.String("value", v),
		)
		return def
	}
	return b
}

// triple parses "b,g,r".
func (svc *envService) triple(key string, def [3]float64) [3]float64 {
	v, ok := svc.lookup(key)
	if !ok || strings.TrimSpace(v) == "" {
		return def
	}
	parts := strings.Split(v, ",")
	if len(parts) != 3 {
		lgr.Logger.Warn("invalid triple setting, using default", slog.String("key", key), slog.String("value", v))
		return def
	}
	var out [3]float64
	for i, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			lgr.Logger.Warn("invalid triple setting, using default", slog.String("key", key), slog.String("value", v))
			return def
		}
		out[i] = f
	}
	return out
}
