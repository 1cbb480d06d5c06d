package telemetry

import "time"

// Snapshot is the state of one control loop tick.
type Snapshot struct {
	Tick       uint64    `json:"tick"`
	Time       time.Time `json:"time"`
	Connected  bool      `json:"connected"`
	Mode       string    `json:"mode"`
	Left       float64   `json:"left"`
	Right      float64   `json:"right"`
	Accelerate float64   `json:"accelerate"`
	Brake      float64   `json:"brake"`
	Steer      float64   `json:"steer"`
	Hue        float64   `json:"hue"`
	Angle      float64   `json:"angle"`
}
