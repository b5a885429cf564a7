package channel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelDataReordersChannelsLast(t *testing.T) {
	// 3 positions, 2 channels: p0c0 p0c1 p1c0 p1c1 p2c0 p2c1
	in := []float64{1, 10, 2, 20, 3, 30}

	out, err := Pipeline{}.ChannelData(in, 2)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3, 10, 20, 30}, out)
}

func TestChannelDataSingleChannelIsIdentity(t *testing.T) {
	in := []float64{4, 5, 6}
	out, err := Pipeline{}.ChannelData(in, 1)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestChannelDataShapeMismatch(t *testing.T) {
	_, err := Pipeline{}.ChannelData([]float64{1, 2, 3}, 2)
	assert.ErrorIs(t, err, ErrShapeMismatch)

	_, err = Pipeline{}.ChannelData([]float64{1, 2}, 0)
	assert.ErrorIs(t, err, ErrBadDepth)
}

func TestAggregationData(t *testing.T) {
	in := []float64{1, 3, 2, 8, -1, 5}

	avg, err := Pipeline{}.AggregationData(in, 2, Average)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{2, 5, 2}, avg, 1e-9)

	mx, err := Pipeline{}.AggregationData(in, 2, Max)
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 8, 5}, mx)
}

func TestAggregationDataUnknownStrategy(t *testing.T) {
	_, err := Pipeline{}.AggregationData([]float64{1, 2}, 2, Strategy(9))
	assert.ErrorIs(t, err, ErrUnknownStrategy)
}

func TestValuesToColors(t *testing.T) {
	colors := Pipeline{}.ValuesToColors([]float64{2, 4, 6})
	assert.InDeltaSlice(t, []float64{0, 0.5, 1}, colors, 1e-9)

	assert.Equal(t, []float64{0, 0, 0}, Pipeline{}.ValuesToColors([]float64{7, 7, 7}))
	assert.Empty(t, Pipeline{}.ValuesToColors(nil))
}

func TestValuesToColorsDoesNotMutateInput(t *testing.T) {
	in := []float64{-1, 1}
	Pipeline{}.ValuesToColors(in)
	assert.Equal(t, []float64{-1, 1}, in)
}

func TestParseStrategy(t *testing.T) {
	for in, want := range map[string]Strategy{
		"average": Average,
		"AVG":     Average,
		" mean ":  Average,
		"max":     Max,
	} {
		got, err := ParseStrategy(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseStrategy("median")
	assert.ErrorIs(t, err, ErrUnknownStrategy)
}
