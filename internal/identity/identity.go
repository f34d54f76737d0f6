// Package identity generates the anonymous visitor identity used for ratings.
package identity

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/google/uuid"
)

var adjectives = []string{
	"Swift", "Brave", "Clever", "Happy", "Lucky", "Mighty", "Quiet", "Sunny",
	"Witty", "Gentle", "Bold", "Calm", "Eager", "Jolly", "Nimble", "Zesty",
}

var animals = []string{
	"Panda", "Tiger", "Eagle", "Dolphin", "Fox", "Owl", "Koala", "Otter",
	"Falcon", "Lynx", "Penguin", "Rabbit", "Wolf", "Badger", "Heron", "Gecko",
}

// Visitor is an anonymous identity. ID is a uuid v4; Name is "Adjective Animal NN".
type Visitor struct {
	ID   string
	Name string
}

// Generator produces visitors. Intn is swappable for deterministic tests.
type Generator struct {
	NewID func() string
	Intn  func(n int) int
}

func NewGenerator() *Generator {
	return &Generator{
		NewID: func() string { return uuid.NewString() },
		Intn:  rand.IntN,
	}
}

func (g *Generator) Generate() Visitor {
	adj := adjectives[g.Intn(len(adjectives))]
	animal := animals[g.Intn(len(animals))]
	return Visitor{
		ID:   g.NewID(),
		Name: fmt.Sprintf("%s %s %02d", adj, animal, g.Intn(100)),
	}
}

// Generate uses the default generator.
func Generate() Visitor { return NewGenerator().Generate() }

// Store is the persistence identity needs; *localstate.Store satisfies it.
type Store interface {
	Visitor(ctx context.Context) (id, name string, ok bool, err error)
	SaveVisitor(ctx context.Context, id, name string) error
}

// LoadOrCreate returns the persisted visitor, generating and saving one on
// first use.
func LoadOrCreate(ctx context.Context, store Store, gen *Generator) (Visitor, error) {
	id, name, ok, err := store.Visitor(ctx)
	if err != nil {
		return Visitor{}, fmt.Errorf("load visitor: %w", err)
	}
	if ok {
		return Visitor{ID: id, Name: name}, nil
	}
	if gen == nil {
		gen = NewGenerator()
	}
	v := gen.Generate()
	if err := store.SaveVisitor(ctx, v.ID, v.Name); err != nil {
		return Visitor{}, fmt.Errorf("save visitor: %w", err)
	}
	return v, nil
}
