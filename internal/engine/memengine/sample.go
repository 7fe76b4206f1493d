package memengine

import (
	"github.com/zjrosen/bimview/internal/engine"
	"github.com/zjrosen/bimview/internal/spatialtree"
)

func box(x, y, z, w, h, d float64) *engine.Box {
	return &engine.Box{
		Min: engine.Vec3{X: x, Y: y, Z: z},
		Max: engine.Vec3{X: x + w, Y: y + h, Z: z + d},
	}
}

// SampleSnapshot is a two-storey building used by the demo mode and tests.
//
//	IFCPROJECT
//	  IFCBUILDINGSTOREY "Level 0" (10)
//	    IFCWALL 11, 12    IFCDOOR 13    IFCSLAB 14
//	  IFCBUILDINGSTOREY "Level 1" (20)
//	    IFCWALL 21, 22 (22 typed IFCWALLSTANDARDCASE)    IFCWINDOW 23
func SampleSnapshot() *Snapshot {
	id := spatialtree.ID
	return &Snapshot{
		Version: SnapshotVersion,
		Name:    "sample",
		Tree: &spatialtree.Node{
			Category: "IFCPROJECT",
			LocalID:  id(1),
			Children: []*spatialtree.Node{
				{
					Category: "IFCBUILDINGSTOREY",
					LocalID:  id(10),
					Children: []*spatialtree.Node{
						{Category: "IFCWALL", Children: []*spatialtree.Node{{LocalID: id(11)}, {LocalID: id(12)}}},
						{Category: "IFCDOOR", Children: []*spatialtree.Node{{LocalID: id(13)}}},
						{Category: "IFCSLAB", Children: []*spatialtree.Node{{LocalID: id(14)}}},
					},
				},
				{
					Category: "IFCBUILDINGSTOREY",
					LocalID:  id(20),
					Children: []*spatialtree.Node{
						{Category: "IFCWALL", Children: []*spatialtree.Node{{LocalID: id(21)}, {LocalID: id(22)}}},
						{Category: "IFCWINDOW", Children: []*spatialtree.Node{{LocalID: id(23)}}},
					},
				},
			},
		},
		Elements: []Element{
			{LocalID: 1, Type: "IFCPROJECT", Name: "Sample project"},
			{LocalID: 10, Type: "IFCBUILDINGSTOREY", Name: "Level 0", Attributes: map[string]string{"Elevation": "0.0"}},
			{LocalID: 11, Type: "IFCWALL", Name: "Wall north", Bounds: box(0, 0, 0, 10, 3, 0.2)},
			{LocalID: 12, Type: "IFCWALL", Name: "Wall south", Bounds: box(0, 0, 8, 10, 3, 0.2)},
			{LocalID: 13, Type: "IFCDOOR", Name: "Front door", Bounds: box(4, 0, 8, 1, 2.1, 0.2), Attributes: map[string]string{"FireRating": "EI30"}},
			{LocalID: 14, Type: "IFCSLAB", Name: "Ground slab", Bounds: box(0, -0.3, 0, 10, 0.3, 8.2)},
			{LocalID: 20, Type: "IFCBUILDINGSTOREY", Name: "Level 1", Attributes: map[string]string{"Elevation": "3.0"}},
			{LocalID: 21, Type: "IFCWALL", Name: "Wall east", Bounds: box(10, 3, 0, 0.2, 3, 8)},
			{LocalID: 22, Type: "IFCWALLSTANDARDCASE", Name: "Wall west", Bounds: box(0, 3, 0, 0.2, 3, 8)},
			{LocalID: 23, Type: "IFCWINDOW", Name: "Window", Bounds: box(10, 4, 3, 0.2, 1.2, 1.5)},
		},
	}
}

// SampleBytes returns SampleSnapshot encoded.
func SampleBytes() []byte {
	b, err := EncodeSnapshot(SampleSnapshot())
	if err != nil {
		panic("memengine: encode sample: " + err.Error())
	}
	return b
}
