// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/Thermoquad/nbplink/pkg/nbp"
)

// Channels the driver fills in itself
var (
	CounterChannel   = nbp.Channel{Name: "Counter"}
	FrequencyChannel = nbp.Channel{Name: "Frequency", Unit: "Hz", Kind: nbp.Float}
)

// Source supplies channel values on demand
type Source interface {
	// Channels declares the channels Sample reports
	Channels() []nbp.Channel
	// Sample reads every channel at elapsed time since start
	Sample(elapsed time.Duration) []nbp.Sample
}

// PlaceholderSource stands in for real sensors: a slow sine wave on a float
// channel and a random integer channel.
type PlaceholderSource struct {
	rng *rand.Rand
}

// NewPlaceholderSource creates a placeholder source seeded with seed
func NewPlaceholderSource(seed uint64) *PlaceholderSource {
	return &PlaceholderSource{rng: rand.New(rand.NewPCG(seed, seed^0x9E3779B97F4A7C15))}
}

// Channels implements Source
func (s *PlaceholderSource) Channels() []nbp.Channel {
	return []nbp.Channel{
		{Name: "Wave", Unit: "V", Kind: nbp.Float},
		{Name: "Random", Kind: nbp.Integer},
	}
}

// Sample implements Source
func (s *PlaceholderSource) Sample(elapsed time.Duration) []nbp.Sample {
	return []nbp.Sample{
		{Name: "Wave", Value: 2.5 + 2.5*math.Sin(2*math.Pi*elapsed.Seconds()/60)},
		{Name: "Random", Value: float64(s.rng.IntN(10))},
	}
}
