// Package config loads the bench configuration file. The file is JSON
// with camelCase keys; a missing or unreadable file falls back to
// defaults with a warning, since the bench parameters only matter once a
// measure actually runs.
package config

import (
	"encoding/json"
	"log"
	"os"

	"arrowctl/internal/device"
)

type Configuration struct {
	DrawMeasureInterval  float64             `json:"drawMeasureInterval"`
	HoldTime             float64             `json:"holdTime"`
	SpeedMeasureDistance float64             `json:"speedMeasureDistance"`
	DistancePerRotation  float64             `json:"distancePerRotation"`
	MaxDrawDistance      float64             `json:"maxDrawDistance"`
	MaxDrawForce         float64             `json:"maxDrawForce"`
	Calibration          *device.Calibration `json:"calibration,omitempty"`
}

func Default() Configuration {
	return Configuration{
		DrawMeasureInterval:  10e-3,
		HoldTime:             100e-3,
		SpeedMeasureDistance: 20e-2,
		DistancePerRotation:  30e-3,
		MaxDrawDistance:      0.85,
		MaxDrawForce:         30.0,
	}
}

// Load reads path, falling back to Default on any failure.
func Load(path string) Configuration {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("[WARN] cannot open config file: '%v'. Using default values.", err)
		return cfg
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		log.Printf("[WARN] cannot parse config file: '%v'. Using default values.", err)
		return Default()
	}
	return cfg
}
