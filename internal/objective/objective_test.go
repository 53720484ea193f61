package objective

import (
	"context"
	"testing"

	"github.com/eegbench/eegbench/internal/dataset"
	"github.com/eegbench/eegbench/internal/device"
	"github.com/eegbench/eegbench/internal/nnet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func simulated(sessions int) *dataset.Simulated {
	s := dataset.NewSimulated()
	s.NSessions = sessions
	s.NChannels = 2
	s.SFreq = 50
	return s
}

func setData(t *testing.T, s *dataset.Simulated) *MotorImagery {
	data, err := s.Data(context.Background())
	require.NoError(t, err)
	o := NewMotorImagery()
	require.NoError(t, o.SetData(context.Background(), data))
	return o
}

func count(y []int) map[int]int {
	out := map[int]int{}
	for _, l := range y {
		out[l]++
	}
	return out
}

func TestLastSessionIsHeldOut(t *testing.T) {
	o := setData(t, simulated(3))
	assert.Equal(t, []string{"feet", "left_hand", "right_hand"}, o.Classes())

	X, y, sfreq := o.Objective()
	assert.Equal(t, 50.0, sfreq)
	// 2 subjects x 2 training sessions x 3 classes x 10 trials
	assert.Len(t, X, 120)
	assert.Len(t, y, 120)
	assert.Len(t, o.Test().X, 60)
	assert.Equal(t, map[int]int{0: 40, 1: 40, 2: 40}, count(y))
}

func TestSingleSessionIsSplitByClass(t *testing.T) {
	o := setData(t, simulated(1))

	_, y, _ := o.Objective()
	assert.Equal(t, map[int]int{0: 16, 1: 16, 2: 16}, count(y))
	assert.Equal(t, map[int]int{0: 4, 1: 4, 2: 4}, count(o.Test().Y))

	again := setData(t, simulated(1))
	assert.Equal(t, o.Test(), again.Test())
}

func TestSetDataSurfacesLoadErrors(t *testing.T) {
	z := &dataset.Zhou{CacheDir: t.TempDir()}
	data, err := z.Data(context.Background())
	require.NoError(t, err)
	require.Error(t, NewMotorImagery().SetData(context.Background(), data))
	require.Error(t, NewMotorImagery().SetData(context.Background(), dataset.Data{}))
}

func TestCompute(t *testing.T) {
	o := setData(t, simulated(2))
	X, _, _ := o.Objective()
	channels, samples := X.Shape()

	clf, err := nnet.New(nnet.Config{
		Model:          nnet.ShallowFBCSPNet(channels, 3, samples),
		LearningRate:   0.000625,
		BatchSize:      64,
		ScheduleEpochs: 4,
		Device:         device.Device{Kind: device.CPU, Workers: 1},
	})
	require.NoError(t, err)

	scores, err := o.Compute(clf)
	require.NoError(t, err)
	assert.Equal(t, 60, scores.NTrain)
	assert.Equal(t, 60, scores.NTest)
	assert.GreaterOrEqual(t, scores.TestAccuracy, 0.0)
	assert.LessOrEqual(t, scores.TestAccuracy, 1.0)

	_, err = o.Compute(nil)
	require.Error(t, err)
}
