package reconcile

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Guliveer/spectrometer/internal/models"
)

func record(id string, value float64) models.SensorRecord {
	return models.SensorRecord{
		Identifier: id,
		Name:       "sensor " + id,
		Category:   models.CategoryCPU,
		Kind:       models.KindLoad,
		Value:      models.Float(value),
		Min:        models.Float(value),
		Max:        models.Float(value),
	}
}

func TestMerge_PreservesUserFlags(t *testing.T) {
	prev := models.Collection{record("/cpu/0/load/0", 10), record("/cpu/0/load/1", 20)}
	prev[0].IsPinned = true
	prev[1].IsGraphEnabled = true

	incoming := models.Collection{record("/cpu/0/load/0", 55), record("/cpu/0/load/1", 66)}
	incoming[0].Name = "CPU Total"

	merged := Merge(prev, incoming)
	require.Len(t, merged, 2)

	assert.True(t, merged[0].IsPinned)
	assert.False(t, merged[0].IsGraphEnabled)
	assert.Equal(t, 55.0, *merged[0].Value)
	assert.Equal(t, "CPU Total", merged[0].Name)

	assert.False(t, merged[1].IsPinned)
	assert.True(t, merged[1].IsGraphEnabled)
	assert.Equal(t, 66.0, *merged[1].Value)
}

func TestMerge_NewSensorsStartUnflagged(t *testing.T) {
	prev := models.Collection{record("/a/0", 1)}
	prev[0].IsPinned = true

	merged := Merge(prev, models.Collection{record("/b/0", 2)})
	require.Len(t, merged, 1)
	assert.False(t, merged[0].IsPinned)
	assert.False(t, merged[0].IsGraphEnabled)
}

func TestMerge_IncomingFlagsIgnoredForKnownSensors(t *testing.T) {
	prev := models.Collection{record("/a/0", 1)}
	in := models.Collection{record("/a/0", 2)}
	in[0].IsPinned = true

	merged := Merge(prev, in)
	assert.False(t, merged[0].IsPinned)
}

func TestMerge_DropsLaterDuplicates(t *testing.T) {
	incoming := models.Collection{
		record("/a/0", 1),
		record("/b/0", 2),
		record("/a/0", 99),
	}
	merged := Merge(nil, incoming)

	require.Len(t, merged, 2)
	assert.Equal(t, "/a/0", merged[0].Identifier)
	assert.Equal(t, 1.0, *merged[0].Value)
	assert.Equal(t, "/b/0", merged[1].Identifier)
}

func TestMerge_PreservesIncomingOrder(t *testing.T) {
	prev := models.Collection{record("/a", 1), record("/b", 2), record("/c", 3)}
	incoming := models.Collection{record("/c", 3), record("/a", 1), record("/b", 2)}
	merged := Merge(prev, incoming)
	assert.Equal(t, []string{"/c", "/a", "/b"}, merged.Identifiers())
}

func TestMerge_DoesNotMutateInputs(t *testing.T) {
	prev := models.Collection{record("/a", 1)}
	prev[0].IsPinned = true
	incoming := models.Collection{record("/a", 2)}

	Merge(prev, incoming)
	assert.False(t, incoming[0].IsPinned)
}

func TestMerge_EmptyIncoming(t *testing.T) {
	prev := models.Collection{record("/a", 1)}
	merged := Merge(prev, nil)
	assert.NotNil(t, merged)
	assert.Empty(t, merged)
}

// randomCollection builds a duplicate-free collection with random flags and
// readings.
func randomCollection(rng *rand.Rand) models.Collection {
	n := rng.Intn(20)
	c := make(models.Collection, 0, n)
	for i := 0; i < n; i++ {
		r := record(fmt.Sprintf("/dev/%d/load/%d", rng.Intn(4), i), rng.Float64()*100)
		r.IsPinned = rng.Intn(2) == 0
		r.IsGraphEnabled = rng.Intn(3) == 0
		if rng.Intn(5) == 0 {
			r.Value = nil
		}
		c = append(c, r)
	}
	return c
}

func TestMerge_Idempotent(t *testing.T) {
	rng := rand.New(rand.NewSource(1750))
	for i := 0; i < 500; i++ {
		x := randomCollection(rng)
		once := Merge(x, x)
		assert.Equal(t, x, once, "iteration %d", i)
		assert.Equal(t, once, Merge(once, once), "iteration %d", i)
	}
}

func TestMerge_IdentityPreservationAcrossValueChanges(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		prev := randomCollection(rng)
		next := make(models.Collection, len(prev))
		for j, r := range prev {
			fresh := record(r.Identifier, rng.Float64()*100)
			next[j] = fresh
		}
		merged := Merge(prev, next)
		require.Len(t, merged, len(prev))
		for j := range merged {
			assert.Equal(t, prev[j].IsPinned, merged[j].IsPinned)
			assert.Equal(t, prev[j].IsGraphEnabled, merged[j].IsGraphEnabled)
			assert.Equal(t, next[j].Value, merged[j].Value)
		}
	}
}

func TestDuplicates(t *testing.T) {
	c := models.Collection{record("/a", 1), record("/b", 1), record("/a", 2), record("/a", 3), record("/b", 4)}
	assert.Equal(t, []string{"/a", "/b"}, Duplicates(c))
	assert.Empty(t, Duplicates(models.Collection{record("/x", 1)}))
}
