// Profiling:
// go build ./profile/entities
// go tool pprof -http=":8000" -nodefraction=0.001 ./entities mem.pprof

package main

import (
	"github.com/TheBitDrifter/depot"
	"github.com/TheBitDrifter/table"
	"github.com/pkg/profile"
)

type comp1 struct {
	V int64
	W int64
}

type comp2 struct {
	V int64
	W int64
}

func main() {
	count := 50
	iters := 1000
	entities := 1000
	p := profile.Start(profile.MemProfileAllocs, profile.ProfilePath("."), profile.NoShutdownHook)
	run(count, iters, entities)
	p.Stop()
}

func run(rounds, iters, numEntities int) {
	c1 := depot.FactoryNewComponent[comp1]()
	c2 := depot.FactoryNewComponent[comp2]()

	for range rounds {
		w := depot.Factory.NewWorld(table.Factory.NewSchema())
		query := depot.NewQuery(w, depot.MustShape(depot.Write(c1), depot.Read(c2)))

		for range iters {
			spawned, err := w.NewEntities(numEntities, c1, c2)
			if err != nil {
				panic(err)
			}
			for row := range query.View().Rows() {
				a, b := c1.Mut(row), c2.Get(row)
				a.V += b.V
				a.W += b.W
			}
			if err := w.Despawn(spawned...); err != nil {
				panic(err)
			}
		}
	}
}
