/*
Package depot provides the storage and scheduling core of an Entity-Component-System (ECS) runtime.

Entities live in archetype tables: every distinct set of component types gets one table with a
column per component, so iteration is a walk over dense slices. Each stored value carries the
tick it was added at and the tick it was last changed at, which drives change detection.

Core Concepts:

  - Entity: A generational id issued by the entity package's Allocator.
  - Component: A Go type registered with the world on first use.
  - Table: The columns of every entity sharing one component set.
  - Query: A Shape (what a system reads and writes) plus filters, matched against tables.
  - Schedule: Systems and sets ordered into a dependency graph and run by an executor.

Basic Usage:

	schema := table.Factory.NewSchema()
	world := depot.Factory.NewWorld(schema)

	position := depot.FactoryNewComponent[Position]()
	velocity := depot.FactoryNewComponent[Velocity]()

	world.NewEntities(100, position, velocity)

	movers := depot.NewQuery(world, depot.MustShape(depot.Write(position), depot.Read(velocity)))
	move := depot.NewSystem("move", func(ctx context.Context, run *depot.Run) error {
		for row := range run.View(movers).Rows() {
			pos := position.Mut(row)
			vel := velocity.Get(row)
			pos.X += vel.X
			pos.Y += vel.Y
		}
		return nil
	}, movers)

	schedule := depot.Factory.NewSchedule(world)
	schedule.AddSystems(depot.Configure(move))
	schedule.Run(context.Background())

While a schedule runs, the world is locked: structural changes go through the Enqueue methods and
are applied when the world unlocks.
*/
package depot
