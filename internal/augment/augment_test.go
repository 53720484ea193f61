package augment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ones(n, channels, samples int) [][][]float64 {
	batch := make([][][]float64, n)
	for i := range batch {
		batch[i] = make([][]float64, channels)
		for c := range batch[i] {
			batch[i][c] = make([]float64, samples)
			for s := range batch[i][c] {
				batch[i][c][s] = 1
			}
		}
	}
	return batch
}

func TestSmoothTimeMaskSweep(t *testing.T) {
	for _, sfreq := range []float64{100, 250, 512} {
		tr := Transforms(ParsePolicy(VariantSmoothTimeMask), sfreq)
		require.Len(t, tr, 2)

		first := tr[0].(*SmoothTimeMask)
		second := tr[1].(*SmoothTimeMask)
		assert.Equal(t, int(sfreq*0.1), first.MaskLenSamples)
		assert.Equal(t, int(sfreq*2.0), second.MaskLenSamples)
		for _, m := range []*SmoothTimeMask{first, second} {
			assert.Equal(t, 0.5, m.Probability)
			assert.EqualValues(t, Seed, m.Seed)
		}
	}
}

func TestDeclaredChannelsDropoutFallsThroughToIdentity(t *testing.T) {
	p := ParsePolicy(VariantChannelsDropout)
	require.IsType(t, IdentityPolicy{}, p)

	tr := Transforms(p, 250)
	require.Len(t, tr, 1)
	require.IsType(t, Identity{}, tr[0])
}

func TestChannelDropoutAliasSweep(t *testing.T) {
	tr := Transforms(ParsePolicy("ChannelDropout"), 250)
	require.Len(t, tr, 2)
	assert.Equal(t, 0.0, tr[0].(*ChannelsDropout).PDrop)
	assert.Equal(t, 1.0, tr[1].(*ChannelsDropout).PDrop)
}

func TestUnknownVariantIsIdentity(t *testing.T) {
	for _, name := range []string{VariantIdentityTransform, "", "Mixup"} {
		tr := Transforms(ParsePolicy(name), 250)
		require.Equal(t, []string{"IdentityTransform"}, tr.Names(), name)
	}
}

func TestRangeValues(t *testing.T) {
	assert.Equal(t, []float64{0.1, 2}, Range{Min: 0.1, Max: 2, Points: 2}.Values())
	assert.Equal(t, []float64{0, 0.5, 1}, Range{Min: 0, Max: 1, Points: 3}.Values())
	assert.Equal(t, []float64{3}, Range{Min: 3, Max: 4, Points: 1}.Values())
	assert.Nil(t, Range{}.Values())
}

func TestChannelsDropoutExtremes(t *testing.T) {
	t.Run("never drops with p_drop 0", func(t *testing.T) {
		batch := ones(8, 3, 5)
		NewChannelsDropout(1, 0, Seed).Apply(batch)
		require.Equal(t, ones(8, 3, 5), batch)
	})

	t.Run("drops every channel with p_drop 1", func(t *testing.T) {
		batch := ones(8, 3, 5)
		NewChannelsDropout(1, 1, Seed).Apply(batch)
		for _, seg := range batch {
			for _, ch := range seg {
				for _, v := range ch {
					require.Zero(t, v)
				}
			}
		}
	})

	t.Run("probability 0 never applies", func(t *testing.T) {
		batch := ones(8, 3, 5)
		NewChannelsDropout(0, 1, Seed).Apply(batch)
		require.Equal(t, ones(8, 3, 5), batch)
	})
}

func TestSmoothTimeMaskAttenuatesWindow(t *testing.T) {
	batch := ones(1, 2, 200)
	NewSmoothTimeMask(1, 50, Seed).Apply(batch)

	var masked int
	for _, v := range batch[0][0] {
		if v < 0.5 {
			masked++
		}
	}
	// the sigmoid edges cross 0.5 exactly at the window boundaries
	assert.InDelta(t, 50, masked, 1)
	assert.Equal(t, batch[0][0], batch[0][1])
}

func TestTransformsAreReproducible(t *testing.T) {
	a, b := ones(16, 4, 100), ones(16, 4, 100)
	Transforms(ParsePolicy(VariantSmoothTimeMask), 50).Apply(a)
	Transforms(ParsePolicy(VariantSmoothTimeMask), 50).Apply(b)
	require.Equal(t, a, b)
}

func TestMaskWeights(t *testing.T) {
	w := MaskWeights(100, 40, 20)
	assert.InDelta(t, 1, w[0], 1e-6)
	assert.InDelta(t, 0, w[50], 1e-4)
	assert.InDelta(t, 1, w[99], 1e-6)
}
