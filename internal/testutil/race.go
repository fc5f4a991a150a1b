package testutil

import (
	"math"
	"strconv"

	"github.com/brianvoe/gofakeit/v7"
)

// StepKind names one randomized race event.
type StepKind string

const (
	StepResult       StepKind = "result"
	StepScan         StepKind = "scan"
	StepUse          StepKind = "use"
	StepInsert       StepKind = "insert"
	StepDelete       StepKind = "delete"
	StepConfirm      StepKind = "confirm"
	StepDeleteResult StepKind = "delete_result"
	StepUpdateTime   StepKind = "update_time"
)

// Step is one generated race event. Pick selects a target among the current
// results; callers reduce it modulo the number of candidates.
type Step struct {
	Kind           StepKind
	DevicePosition int
	Time           float64
	Bib            string
	Pick           int
}

// RaceGenerator produces reproducible random races for property tests.
type RaceGenerator struct {
	faker  *gofakeit.Faker
	seed   uint64
	device int
	clock  float64
}

// NewRaceGenerator creates a generator. The same seed always yields the same
// steps.
func NewRaceGenerator(seed uint64) *RaceGenerator {
	return &RaceGenerator{
		faker: gofakeit.New(seed),
		seed:  seed,
		clock: 600,
	}
}

// Seed returns the generator's seed, for failure messages.
func (g *RaceGenerator) Seed() uint64 {
	return g.seed
}

// Bib returns a random race number.
func (g *RaceGenerator) Bib() string {
	return strconv.Itoa(g.faker.Number(1, 1500))
}

// Result returns the next device result. Times mostly increase, with the
// occasional late-arriving earlier finish and exact tie.
func (g *RaceGenerator) Result() Step {
	g.device++
	t := g.clock
	switch n := g.faker.Number(0, 9); {
	case n == 0:
		t = math.Max(0, g.clock-g.faker.Float64Range(0, 30))
	case n == 1:
		// exact tie with the previous finish
	default:
		g.clock += g.faker.Float64Range(0.01, 20)
		t = g.clock
	}
	return Step{
		Kind:           StepResult,
		DevicePosition: g.device,
		Time:           math.Round(t*100) / 100,
	}
}

// Steps returns n random steps weighted towards arrivals.
func (g *RaceGenerator) Steps(n int) []Step {
	steps := make([]Step, 0, n)
	for i := 0; i < n; i++ {
		switch r := g.faker.Number(0, 99); {
		case r < 35:
			steps = append(steps, g.Result())
		case r < 70:
			steps = append(steps, Step{Kind: StepScan, Bib: g.Bib()})
		case r < 78:
			steps = append(steps, Step{Kind: StepUse, Pick: g.faker.Number(0, 1<<20)})
		case r < 85:
			steps = append(steps, Step{Kind: StepInsert, Pick: g.faker.Number(0, 1<<20)})
		case r < 92:
			steps = append(steps, Step{Kind: StepDelete, Pick: g.faker.Number(0, 1<<20)})
		case r < 95:
			steps = append(steps, Step{Kind: StepConfirm, Pick: g.faker.Number(0, 1<<20)})
		case r < 97:
			steps = append(steps, Step{Kind: StepDeleteResult, Pick: g.faker.Number(0, 1<<20)})
		default:
			steps = append(steps, Step{
				Kind: StepUpdateTime,
				Pick: g.faker.Number(0, 1<<20),
				Time: math.Round(g.faker.Float64Range(0, g.clock+10)*100) / 100,
			})
		}
	}
	return steps
}
