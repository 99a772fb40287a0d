package fan_test

import (
	"testing"

	"codeberg.org/mutker/handheldctl/internal/errors"
	"codeberg.org/mutker/handheldctl/internal/fan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var threePoint = fan.Curve{
	{Temperature: 40, Speed: 20},
	{Temperature: 60, Speed: 50},
	{Temperature: 80, Speed: 100},
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name string
		temp float64
		want int
	}{
		{"interpolated", 50, 35},
		{"above last point", 90, 100},
		{"below first point", 10, 20},
		{"on a point", 60, 50},
		{"upper segment", 70, 75},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := threePoint.Evaluate(tt.temp)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluateEmptyCurve(t *testing.T) {
	_, ok := fan.Curve(nil).Evaluate(55)
	assert.False(t, ok)
}

func TestEvaluateMonotonic(t *testing.T) {
	prev := -1
	for temp := 0.0; temp <= 100; temp += 0.25 {
		got, _ := threePoint.Evaluate(temp)
		assert.GreaterOrEqual(t, got, prev, "temperature %.2f", temp)
		prev = got
	}
}

func TestValidate(t *testing.T) {
	assert.NoError(t, threePoint.Validate())
	assert.NoError(t, fan.Curve{}.Validate())

	err := fan.Curve{{Temperature: 50, Speed: 20}, {Temperature: 50, Speed: 30}}.Validate()
	require.Error(t, err)
	assert.Equal(t, fan.ErrInvalidCurve, errors.CodeOf(err))

	err = fan.Curve{{Temperature: 50, Speed: 120}}.Validate()
	assert.Equal(t, fan.ErrInvalidCurve, errors.CodeOf(err))
}

func TestMonotonic(t *testing.T) {
	assert.True(t, threePoint.Monotonic())
	assert.False(t, fan.Curve{{Temperature: 40, Speed: 60}, {Temperature: 60, Speed: 30}}.Monotonic())
}
