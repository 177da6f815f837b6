package repo

import (
	"math"
	"math/rand"
	"time"
)

// DeviceMotionMeasurement is the measurement the synthetic generator writes to.
const DeviceMotionMeasurement = "devicemotion"

var deviceMotionProfiles = []struct {
	label     string
	amplitude float64
	frequency float64
	offset    float64
}{
	{label: "STILL", amplitude: 0.05, frequency: 0.2, offset: 0},
	{label: "WALKING", amplitude: 2.5, frequency: 2, offset: 0.5},
	{label: "RUNNING", amplitude: 6, frequency: 3, offset: 1.5},
}

// SyntheticDeviceMotion returns perLabel accelerometer samples per activity, 20ms apart, starting at
// start. The activity is stored under labelKey. Output is deterministic.
func SyntheticDeviceMotion(perLabel int, start time.Time, labelKey string) []Point {
	rng := rand.New(rand.NewSource(1))
	points := make([]Point, 0, perLabel*len(deviceMotionProfiles))
	ts := start
	for _, profile := range deviceMotionProfiles {
		for i := 0; i < perLabel; i++ {
			phase := 2 * math.Pi * profile.frequency * float64(i) * 0.02
			noise := func() float64 { return rng.NormFloat64() * 0.05 }
			points = append(points, Point{
				Measurement: DeviceMotionMeasurement,
				Time:        ts,
				Tags:        map[string]string{labelKey: profile.label},
				Fields: map[string]float64{
					"Accelerometer-X": profile.offset + profile.amplitude*math.Sin(phase) + noise(),
					"Accelerometer-Y": profile.offset + profile.amplitude*math.Cos(phase) + noise(),
					"Accelerometer-Z": 9.81 + profile.amplitude*0.5*math.Sin(2*phase) + noise(),
				},
			})
			ts = ts.Add(20 * time.Millisecond)
		}
	}
	return points
}
