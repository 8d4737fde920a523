package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"dispatch/internal/domain"
)

func TestLengthSeedRoute(t *testing.T) {
	intake := domain.IntakeDistanceModel()

	// 18 runes: 18 % 20 + 3 = 21 km, floor(21 * 1.8) = 37 min.
	route := lengthSeedRoute("ABcdEfghij", "KLmNopqr", intake)
	assert.Equal(t, domain.Route{Distance: 21, DurationMinutes: 37}, route)

	// Wrap-around: 20 runes reduce to 0.
	route = lengthSeedRoute("abcdefghij", "klmnopqrst", intake)
	assert.Equal(t, domain.Route{Distance: 3, DurationMinutes: 5}, route)

	// Non-positive divisors behave as 1.
	route = lengthSeedRoute("a", "b", domain.DistanceModel{Divisor: 0, MinDistance: 2, SpeedFactor: 2})
	assert.Equal(t, domain.Route{Distance: 2, DurationMinutes: 4}, route)
}

func TestRoundHalfUp(t *testing.T) {
	cases := map[float64]int{
		0:      0,
		2.49:   2,
		2.5:    3,
		300.33: 300,
		300.67: 301,
	}
	for in, want := range cases {
		assert.Equal(t, want, roundHalfUp(in), "roundHalfUp(%v)", in)
	}
}
