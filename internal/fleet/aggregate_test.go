package fleet

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var aggRef = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func sampleFleet() []Device {
	fresh := ptrTime(aggRef.Add(-5 * time.Second))
	stale := ptrTime(aggRef.Add(-10 * time.Minute))
	return []Device{
		{ID: "d1", Region: "EMEA", Subregion: "DACH", Facility: "Munich", Status: StatusOnline, LastSeen: fresh, CPUScore: ptrFloat(80)},
		{ID: "d2", Region: "EMEA", Subregion: "DACH", Facility: "Munich", Status: StatusOnline, LastSeen: stale, CPUScore: ptrFloat(60)},
		{ID: "d3", Region: "EMEA", Subregion: "DACH", Facility: "Vienna", Status: StatusOffline, LastSeen: fresh},
		{ID: "d4", Region: "EMEA", Subregion: "Nordics", Facility: "Oslo", Status: StatusOnline, LastSeen: fresh, Defective: true},
		{ID: "d5", Region: "APAC", Subregion: "ANZ", Facility: "Sydney", Status: StatusOnline, LastSeen: fresh},
		{ID: "d6", Region: "", Subregion: " ", Facility: "", Status: StatusOnline, LastSeen: nil},
	}
}

func TestAggregate_Region(t *testing.T) {
	groups := Aggregate(sampleFleet(), LevelRegion, NewLiveness(40*time.Second), aggRef)
	require.Len(t, groups, 3)

	emea := groups["EMEA"]
	assert.Equal(t, 4, emea.DeviceCount)
	assert.Equal(t, 1, emea.OnlineCount)
	assert.Equal(t, 2, emea.OfflineCount)
	assert.Equal(t, 1, emea.DefectiveCount)
	assert.Equal(t, 2, emea.ChildGroupCount)
	require.NotNil(t, emea.AveragePerformance)
	assert.InDelta(t, 70.0, *emea.AveragePerformance, 1e-9)

	unknown := groups[UnknownKey]
	assert.Equal(t, 1, unknown.DeviceCount)
	assert.Equal(t, 1, unknown.OfflineCount)
	assert.Equal(t, 1, unknown.ChildGroupCount)
	assert.Nil(t, unknown.AveragePerformance)
}

func TestAggregate_ChildCounts(t *testing.T) {
	live := NewLiveness(40 * time.Second)

	sub := Aggregate(sampleFleet(), LevelSubregion, live, aggRef)
	assert.Equal(t, 2, sub["DACH"].ChildGroupCount)
	assert.Equal(t, 1, sub["Nordics"].ChildGroupCount)

	fac := Aggregate(sampleFleet(), LevelFacility, live, aggRef)
	for _, g := range fac {
		assert.Equal(t, 0, g.ChildGroupCount, g.Key)
	}
	assert.Equal(t, 2, fac["Munich"].DeviceCount)
}

func TestAggregate_EveryDeviceCountedOnce(t *testing.T) {
	devices := ApplyOverrides(sampleFleet(), NewOverrideSet("d1", "d5"))
	for _, level := range []Level{LevelRegion, LevelSubregion, LevelFacility} {
		groups := Aggregate(devices, level, NewLiveness(40*time.Second), aggRef)
		total := 0
		for _, g := range groups {
			assert.Equal(t, g.DeviceCount, g.OnlineCount+g.OfflineCount+g.DefectiveCount, "%s/%s", level, g.Key)
			total += g.DeviceCount
		}
		assert.Equal(t, len(devices), total, level)
	}
}

func TestAggregate_OrderIndependent(t *testing.T) {
	devices := sampleFleet()
	live := NewLiveness(40 * time.Second)
	expected := Aggregate(devices, LevelFacility, live, aggRef)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 10; i++ {
		shuffled := append([]Device(nil), devices...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		assert.Equal(t, expected, Aggregate(shuffled, LevelFacility, live, aggRef))
	}
}

func TestAggregate_RollUpMatchesParent(t *testing.T) {
	devices := sampleFleet()
	live := NewLiveness(40 * time.Second)
	regions := Aggregate(devices, LevelRegion, live, aggRef)

	for key, region := range regions {
		inRegion := FilterDevices(devices, func(d Device) bool { return d.LocationKey(LevelRegion) == key })
		facilities := Aggregate(inRegion, LevelFacility, live, aggRef)
		sum := Totals(facilities)
		assert.Equal(t, region.DeviceCount, sum.DeviceCount, key)
		assert.Equal(t, region.OnlineCount, sum.OnlineCount, key)
		assert.Equal(t, region.OfflineCount, sum.OfflineCount, key)
		assert.Equal(t, region.DefectiveCount, sum.DefectiveCount, key)
	}

	all := Totals(regions)
	assert.Equal(t, len(devices), all.DeviceCount)
	assert.Equal(t, 3, all.ChildGroupCount)
}

func TestAggregate_Empty(t *testing.T) {
	assert.Empty(t, Aggregate(nil, LevelRegion, NewLiveness(0), aggRef))
	assert.Equal(t, 0, Totals(nil).DeviceCount)
}

func TestSortedGroups(t *testing.T) {
	groups := map[string]Group{
		"b":        {Key: "b"},
		UnknownKey: {Key: UnknownKey},
		"a":        {Key: "a"},
		"Z":        {Key: "Z"},
	}
	sorted := SortedGroups(groups)
	keys := make([]string, len(sorted))
	for i, g := range sorted {
		keys[i] = g.Key
	}
	assert.Equal(t, []string{"Z", "a", "b", UnknownKey}, keys)
}

func TestParseLevel(t *testing.T) {
	l, ok := ParseLevel("facility")
	assert.True(t, ok)
	assert.Equal(t, LevelFacility, l)

	_, ok = ParseLevel("planet")
	assert.False(t, ok)
}
