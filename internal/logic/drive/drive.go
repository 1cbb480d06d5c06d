package drive

import "math"

// Command is a pair of normalized motor speeds in [-1, 1].
type Command struct {
	Left  float64 `json:"left"`
	Right float64 `json:"right"`
}

// Stop is the neutral command.
var Stop = Command{}

// MapAxes converts car-style controller input into a differential-drive
// command: accelerate and brake in [0, 1] set the common speed, steer in
// [-1, 1] (left = -1) is added to the left wheel and taken off the right.
// Both outputs are clamped to [-1, 1].
func MapAxes(accelerate, brake, steer float64) Command {
	base := accelerate - brake
	return Command{
		Left:  Clamp(base + steer),
		Right: Clamp(base - steer),
	}
}

// Clamp limits v to [-1, 1]. NaN maps to 0 so a bad reading stops the motor.
func Clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(-1, math.Min(1, v))
}
