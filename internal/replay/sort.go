package replay

import (
	"sort"

	"github.com/janispritzkau/2b2proxy/internal/world"
)

// The Mirror's maps iterate in randomized order; these helpers impose a
// deterministic emission order so replay output (and therefore tests
// comparing it) is reproducible across runs.

func sortedKeys(keys []string) []string {
	out := append([]string(nil), keys...)
	sort.Strings(out)
	return out
}

func teamNames(m *world.Mirror) []string {
	names := make([]string, 0, len(m.Teams))
	for name := range m.Teams {
		names = append(names, name)
	}
	return names
}

func sortedMapIDs(m *world.Mirror) []int32 {
	ids := make([]int32, 0, len(m.Maps))
	for id := range m.Maps {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func sortedEntityIDs(m *world.Mirror) []int32 {
	ids := make([]int32, 0, len(m.Entities))
	for id := range m.Entities {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func sortedUUIDs(players map[[16]byte]*world.PlayerListItem) [][16]byte {
	ids := make([][16]byte, 0, len(players))
	for u := range players {
		ids = append(ids, u)
	}
	sort.Slice(ids, func(i, j int) bool {
		return string(ids[i][:]) < string(ids[j][:])
	})
	return ids
}

func sortedEquipmentSlots(eq map[int32]world.Item) []int32 {
	slots := make([]int32, 0, len(eq))
	for s := range eq {
		slots = append(slots, s)
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i] < slots[j] })
	return slots
}

func sortedPassengerIDs(passengers map[int32]struct{}) []int32 {
	ids := make([]int32, 0, len(passengers))
	for id := range passengers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func sortedInt32Keys(m map[int32]map[int32]*world.Chunk) []int32 {
	keys := make([]int32, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func sortedInt32KeysI(m map[int32]*world.Chunk) []int32 {
	keys := make([]int32, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
