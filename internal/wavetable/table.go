package wavetable

import (
	"fmt"
	"math"
	"strings"
	"sync"
)

const twoPi = math.Pi * 2

// TableSize is the number of samples in one period of every built-in table.
const TableSize = 1 << 16

// Shape identifies a periodic waveform.
type Shape int

const (
	Sine Shape = iota
	Square
	Sawtooth
	Triangle
	numShapes
)

// Shapes lists every built-in waveform in the order tracks cycle through them
// during file playback.
var Shapes = []Shape{Sawtooth, Sine, Triangle, Square}

func (s Shape) String() string {
	switch s {
	case Sine:
		return "sine"
	case Square:
		return "square"
	case Sawtooth:
		return "sawtooth"
	case Triangle:
		return "triangle"
	default:
		return fmt.Sprintf("shape(%d)", int(s))
	}
}

// ParseShape maps a waveform name to its Shape.
func ParseShape(name string) (Shape, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sine", "sin":
		return Sine, nil
	case "square", "sq":
		return Square, nil
	case "sawtooth", "saw":
		return Sawtooth, nil
	case "triangle", "tri":
		return Triangle, nil
	default:
		return 0, fmt.Errorf("unknown waveform %q (expected sine|square|sawtooth|triangle)", name)
	}
}

// Table is one period of a waveform. Tables returned by Get are shared and
// must not be written to.
type Table []float32

// Generator is a wave function on the domain [0, 1) with codomain [-1, 1].
type Generator func(t float64) float64

func SquareWave(t float64) float64 {
	if t > 0.5 {
		return 1
	}
	return -1
}

func SawtoothWave(t float64) float64 {
	return 2*math.Mod(t, 1) - 1
}

func TriangleWave(t float64) float64 {
	return 2*math.Abs(SawtoothWave(t)) - 1
}

func SineWave(t float64) float64 {
	return math.Sin(twoPi * t)
}

// Generator returns the closed-form wave function for the shape.
func (s Shape) Generator() Generator {
	switch s {
	case Square:
		return SquareWave
	case Sawtooth:
		return SawtoothWave
	case Triangle:
		return TriangleWave
	default:
		return SineWave
	}
}

// Build evaluates fn at n evenly spaced points over [0, 1).
func Build(fn Generator, n int) Table {
	table := make(Table, n)
	for i := range table {
		table[i] = float32(fn(float64(i) / float64(n)))
	}
	return table
}

var (
	tableOnce [numShapes]sync.Once
	tables    [numShapes]Table
)

// Get returns the shared table for shape, building it on first use.
func Get(shape Shape) Table {
	if shape < 0 || shape >= numShapes {
		shape = Sine
	}
	tableOnce[shape].Do(func() {
		tables[shape] = Build(shape.Generator(), TableSize)
	})
	return tables[shape]
}
