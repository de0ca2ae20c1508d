package polyline

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_GoogleReference(t *testing.T) {
	tests := []struct {
		name     string
		encoded  string
		expected []Coordinate
	}{
		{
			name:     "single point",
			encoded:  "_p~iF~ps|U",
			expected: []Coordinate{{Lat: 38.5, Lon: -120.2}},
		},
		{
			name:    "three points",
			encoded: "_p~iF~ps|U_ulLnnqC_mqNvxq`@",
			expected: []Coordinate{
				{Lat: 38.5, Lon: -120.2},
				{Lat: 40.7, Lon: -120.95},
				{Lat: 43.252, Lon: -126.453},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.encoded)
			require.NoError(t, err)
			require.Len(t, got, len(tt.expected))
			for i := range got {
				assert.InDelta(t, tt.expected[i].Lat, got[i].Lat, 1e-5)
				assert.InDelta(t, tt.expected[i].Lon, got[i].Lon, 1e-5)
			}
		})
	}
}

func TestDecode_Empty(t *testing.T) {
	got, err := Decode("")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDecode_Malformed(t *testing.T) {
	// Latitude without a longitude.
	_, err := Decode("_p~iF")
	assert.ErrorIs(t, err, ErrMalformed)

	// Continuation bit set on the final byte.
	_, err = Decode("_p~iF~ps|")
	assert.ErrorIs(t, err, ErrMalformed)

	// Byte below the alphabet.
	_, err = Decode("_p~iF ps|U")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestEncode_GoogleReference(t *testing.T) {
	coords := []Coordinate{
		{Lat: 38.5, Lon: -120.2},
		{Lat: 40.7, Lon: -120.95},
		{Lat: 43.252, Lon: -126.453},
	}
	assert.Equal(t, "_p~iF~ps|U_ulLnnqC_mqNvxq`@", Encode(coords))
	assert.Equal(t, "", Encode(nil))
}

func TestEncodeDecode_Johannesburg(t *testing.T) {
	coords := []Coordinate{
		{Lat: -26.2041, Lon: 28.0473},
		{Lat: -26.1906, Lon: 28.0369},
	}

	got, err := Decode(Encode(coords))
	require.NoError(t, err)
	require.Len(t, got, 2)
	for i := range coords {
		assert.InDelta(t, coords[i].Lat, got[i].Lat, 1e-5)
		assert.InDelta(t, coords[i].Lon, got[i].Lon, 1e-5)
	}
}

func TestEncodePrecision_Six(t *testing.T) {
	coords := []Coordinate{{Lat: 52.374031, Lon: 4.889691}}
	got, err := DecodePrecision(EncodePrecision(coords, 6), 6)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.InDelta(t, coords[0].Lat, got[0].Lat, 1e-6)
	assert.InDelta(t, coords[0].Lon, got[0].Lon, 1e-6)
}

func TestLength(t *testing.T) {
	assert.Zero(t, Length(nil))
	assert.Zero(t, Length([]Coordinate{{Lat: 1, Lon: 1}}))

	oneDegree := Length([]Coordinate{{Lat: 0, Lon: 0}, {Lat: 1, Lon: 0}})
	assert.InDelta(t, 111195, oneDegree, 50)

	// Out and back doubles the length.
	there := []Coordinate{{Lat: 0, Lon: 0}, {Lat: 0, Lon: 1}}
	back := []Coordinate{{Lat: 0, Lon: 0}, {Lat: 0, Lon: 1}, {Lat: 0, Lon: 0}}
	assert.InDelta(t, 2*Length(there), Length(back), 1e-6)
	assert.False(t, math.IsNaN(Length(back)))
}

func BenchmarkDecode(b *testing.B) {
	encoded := "_p~iF~ps|U_ulLnnqC_mqNvxq`@"
	for i := 0; i < b.N; i++ {
		_, _ = Decode(encoded)
	}
}
