package main

import (
	"fmt"
	"math/rand/v2"

	"github.com/yndnr/slotkeep-go/internal/core/domain"
	"github.com/yndnr/slotkeep-go/internal/core/registry"
	"github.com/yndnr/slotkeep-go/internal/core/service"
	"github.com/yndnr/slotkeep-go/internal/core/world"
)

const (
	villageLevel = "Village"
	caveLevel    = "Cave"
)

var moods = []string{"calm", "happy", "grumpy", "scared"}

// demoRegistry describes the village types. Torches are lit by level
// scripts and never saved.
func demoRegistry() *registry.Registry {
	reg := registry.New()
	reg.MustRegister(registry.Descriptor{
		TypeID: "Villager",
		Flags:  registry.FlagSkipDefaults,
		Fields: []registry.FieldDescriptor{
			{Name: "name", Tag: 1, Kind: registry.KindString},
			{Name: "gold", Tag: 2, Kind: registry.KindInt32},
			{Name: "mood", Tag: 3, Kind: registry.KindEnum, EnumValues: moods},
			{Name: "home", Tag: 4, Kind: registry.KindObjectRef},
		},
	})
	reg.MustRegister(registry.Descriptor{
		TypeID: "Chest",
		Fields: []registry.FieldDescriptor{
			{Name: "items", Tag: 1, Kind: registry.KindSequence, Elem: &registry.FieldDescriptor{Kind: registry.KindString}},
			{Name: "locked", Tag: 2, Kind: registry.KindBool},
		},
	})
	reg.MustRegister(registry.Descriptor{
		TypeID: "Barrel",
		Fields: []registry.FieldDescriptor{
			{Name: "fill", Tag: 1, Kind: registry.KindFloat32, Default: float32(1)},
		},
	})
	reg.MustRegister(registry.Descriptor{
		TypeID: "Arrow",
		Fields: []registry.FieldDescriptor{
			{Name: "shooter", Tag: 1, Kind: registry.KindObjectRef},
		},
	})
	reg.MustRegister(registry.Descriptor{
		TypeID: "Torch",
		Flags:  registry.FlagTransient,
	})
	return reg
}

// village is the demo simulation on top of a MemWorld. Only the frame
// loop touches it.
type village struct {
	*world.MemWorld
	rng       *rand.Rand
	villagers []domain.Identity
	barrels   []domain.Identity
	arrows    []domain.Identity
}

func newVillage() *village {
	v := &village{
		MemWorld: world.NewMemWorld(villageLevel),
		rng:      rand.New(rand.NewPCG(1, 2)),
	}
	house := v.MustPlace(domain.NewIdentity(villageLevel, "House_1"), "Barrel", placedAt(0, 0))
	for i, name := range []string{"Ada", "Bram", "Cleo"} {
		id := domain.NewIdentity(villageLevel, fmt.Sprintf("Villager_%d", i+1))
		o := v.MustPlace(id, "Villager", placedAt(float64(i)*4, 2))
		o.SetValue("name", name)
		o.SetValue("home", house)
		v.villagers = append(v.villagers, id)
	}
	for i := 0; i < 3; i++ {
		id := domain.NewIdentity(villageLevel, fmt.Sprintf("Barrel_%d", i+1))
		v.MustPlace(id, "Barrel", placedAt(float64(i)*2, -3))
		v.barrels = append(v.barrels, id)
	}
	v.MustPlace(domain.NewIdentity(villageLevel, "Torch_1"), "Torch", placedAt(1, 1))
	return v
}

func placedAt(x, y float64) domain.SpawnParams {
	t := domain.IdentityTransform
	t.Location = domain.Vector{X: x, Y: y}
	return domain.SpawnParams{Transform: t}
}

// tick advances the simulation by one frame.
func (v *village) tick(frame int) {
	for _, id := range v.villagers {
		o, ok := v.Get(id)
		if !ok {
			continue
		}
		if frame%10 == 0 {
			gold, _ := o.Value("gold")
			g, _ := gold.(int32)
			o.SetValue("gold", g+int32(v.rng.IntN(3)))
		}
		if frame%45 == 0 {
			o.SetValue("mood", moods[v.rng.IntN(len(moods))])
		}
	}

	if frame%20 == 0 && len(v.villagers) > 0 {
		shooter := v.villagers[v.rng.IntN(len(v.villagers))]
		id := domain.NewRuntimeIdentity(villageLevel)
		obj, err := v.Spawn(id, "Arrow", placedAt(v.rng.Float64()*10, v.rng.Float64()*10))
		if err == nil {
			if s, ok := v.Get(shooter); ok {
				obj.(*world.MemObject).SetValue("shooter", s)
			}
			v.arrows = append(v.arrows, id)
		}
	}
	if len(v.arrows) > 5 {
		_ = v.Destroy(v.arrows[0])
		v.arrows = v.arrows[1:]
	}

	if frame%60 == 0 && len(v.barrels) > 1 {
		i := v.rng.IntN(len(v.barrels))
		if o, ok := v.Get(v.barrels[i]); ok {
			fill, _ := o.Value("fill")
			f, ok := fill.(float32)
			if !ok {
				f = 1
			}
			f -= 0.25
			if f <= 0 {
				_ = v.Destroy(v.barrels[i])
				v.barrels = append(v.barrels[:i], v.barrels[i+1:]...)
			} else {
				o.SetValue("fill", f)
			}
		}
	}
}

// toggleCave streams the cave level in or out. Its state survives the
// round trip through the manager's retained captures.
func (v *village) toggleCave(mgr *service.Manager) error {
	for _, l := range v.Levels() {
		if l == caveLevel {
			if err := mgr.OnLevelUnloading(caveLevel); err != nil {
				return err
			}
			v.UnloadLevel(caveLevel)
			return nil
		}
	}

	v.LoadLevel(caveLevel)
	chest := v.MustPlace(domain.NewIdentity(caveLevel, "Chest_1"), "Chest", placedAt(12, 40))
	if _, ok := chest.Value("items"); !ok {
		chest.SetValue("items", []any{"rope", "lantern"})
	}
	v.MustPlace(domain.NewIdentity(caveLevel, "Torch_1"), "Torch", placedAt(10, 38))
	mgr.OnLevelLoaded(caveLevel)

	if o, ok := v.Get(domain.NewIdentity(caveLevel, "Chest_1")); ok {
		items, _ := o.Value("items")
		list, _ := items.([]any)
		if len(list) < 6 {
			o.SetValue("items", append(append([]any(nil), list...), fmt.Sprintf("coin_%d", v.rng.IntN(100))))
		}
	}
	return nil
}
