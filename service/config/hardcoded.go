package config

import (
	"fmt"
)

type hardcodedService struct {
}

func NewHardCoded() IService {
	return &hardcodedService{}
}

func (svc *hardcodedService) GetRunTimeEnv() string {
	return "dev"
}

func (svc *hardcodedService) GetLogLevel() string {
	return "info"
}

func (svc *hardcodedService) GetModeMaxShutdownTime() int {
	// Must stay below the shutdown wait in main
	return 5
}

func (svc *hardcodedService) GetStatsPeriodicTimeout() int {
	return 30
}

func (svc *hardcodedService) GetDataFolder() string {
	return "./settings"
}

func (svc *hardcodedService) GetDataStore() string {
	return StoreFiles
}

func (svc *hardcodedService) GetSQLitePath() string {
	return fmt.Sprintf("%s/objrec.db", svc.GetDataFolder())
}

func (svc *hardcodedService) GetCaptureParameters() CaptureParameters {
	return CaptureParameters{
		Source: SourceDevice,
		Device: 0,
		URL:    "",
		Preset: PresetPhoto,
		FPS:    15,
	}
}

// Defaults target the Caffe ResNet-50 release: 224x224 BGR input with the
// ImageNet channel means subtracted and a softmax layer already in the graph.
func (svc *hardcodedService) GetClassifierParameters() ClassifierParameters {
	return ClassifierParameters{
		ModelPath:           "./models/ResNet-50-model.caffemodel",
		ConfigPath:          "./models/ResNet-50-deploy.prototxt",
		LabelsPath:          "./models/synset_words.txt",
		InputSize:           224,
		ScaleFactor:         1.0,
		Mean:                [3]float64{104, 117, 123},
		SwapRB:              false,
		Softmax:             false,
		TopK:                5,
		WatchModel:          false,
		ConfidencePrecision: -1,
		Logging:             false,
		LogPath:             "observations.log",
	}
}

func (svc *hardcodedService) GetWebParameters() WebParameters {
	return WebParameters{
		Enabled:           true,
		Port:              8080,
		PreviewFPS:        5,
		PreviewQuality:    70,
		CaptureWhenHidden: false,
	}
}

func (svc *hardcodedService) GetTraceParameters() TraceParameters {
	return TraceParameters{
		Enabled: false,
		Path:    "traces.log",
	}
}
