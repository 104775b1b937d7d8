package provider

import (
	"testing"
	"time"
)

func TestConfig_WithDefaults(t *testing.T) {
	cfg := Config{APIKey: "k"}.WithDefaults()

	if cfg.ImageModel != DefaultImageModel {
		t.Errorf("ImageModel = %q, want %q", cfg.ImageModel, DefaultImageModel)
	}
	if cfg.AnalysisModel != DefaultAnalysisModel {
		t.Errorf("AnalysisModel = %q, want %q", cfg.AnalysisModel, DefaultAnalysisModel)
	}
	if cfg.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %s, want %s", cfg.Timeout, DefaultTimeout)
	}
}

func TestConfig_WithDefaults_KeepsOverrides(t *testing.T) {
	cfg := Config{ImageModel: "img", AnalysisModel: "txt", Timeout: 1500 * time.Millisecond}.WithDefaults()

	if cfg.ImageModel != "img" || cfg.AnalysisModel != "txt" || cfg.Timeout != 1500*time.Millisecond {
		t.Errorf("WithDefaults() overwrote explicit values: %+v", cfg)
	}
}
