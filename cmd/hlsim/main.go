// Copyright 2018 Denis Bernard <db047h@gmail.com>
// Licensed under the MIT license. See license text in the LICENSE file.

// Command hlsim schedules a sample data flow graph with the available
// scheduling algorithms, then runs a clocked counter simulation.
//
// Usage:
//
//	hlsim [-algo name] [-scale factor] [-mul n] [-cycles n] [-v]
//
package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/db47h/hlsim"
	"github.com/db47h/hlsim/hwlib"
	"github.com/db47h/hlsim/sched"
	"github.com/docker/go-units"
	"github.com/sirupsen/logrus"
)

type algo struct {
	constrained bool
	run         func(g *sched.Graph, c *sched.Constraints) error
}

func blockRun(bs sched.BlockScheduler) func(g *sched.Graph, c *sched.Constraints) error {
	return func(g *sched.Graph, c *sched.Constraints) error {
		return bs.Schedule(g, g.Instructions(), c)
	}
}

// alapRun schedules g ALAP against the end of its ASAP schedule.
func alapRun(s *sched.ALAPScheduler) func(g *sched.Graph, c *sched.Constraints) error {
	return func(g *sched.Graph, c *sched.Constraints) error {
		is := g.Instructions()
		if err := sched.NewASAP(s.Constrained).Schedule(g, is, c); err != nil {
			return err
		}
		if s.Constrained {
			g.ClearSchedule()
		}
		return s.Schedule(g, is, c)
	}
}

var algos = map[string]algo{
	"sequential":  {false, blockRun(sched.Sequential)},
	"onepercstep": {false, blockRun(sched.OneInstructionPerCStep)},
	"asap":        {false, blockRun(sched.ASAP)},
	"casap":       {true, blockRun(sched.ConstrainedASAP)},
	"alap":        {false, alapRun(sched.ALAP)},
	"calap":       {true, alapRun(sched.ConstrainedALAP)},
	"fds":         {false, blockRun(&sched.ForceDirected{})},
	"fds-buses":   {false, blockRun(&sched.ForceDirected{MinimizeBuses: true, MinimizeRegisters: true})},
}

func algoNames() []string {
	names := make([]string, 0, len(algos))
	for n := range algos {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// diffeq builds the data flow graph of the HAL differential equation
// benchmark loop body:
//
//	x1 = x + dx
//	u1 = u - 3*x*u*dx - 3*y*dx
//	y1 = y + u*dx
//	c = x1 < a
//
func diffeq(mulUnits int) *sched.Graph {
	g := sched.NewGraph()
	m1 := g.Add("m1 = 3*x", "mul", 2)
	m2 := g.Add("m2 = u*dx", "mul", 2)
	m3 := g.Add("m3 = m1*m2", "mul", 2)
	m4 := g.Add("m4 = 3*y", "mul", 2)
	m5 := g.Add("m5 = m4*dx", "mul", 2)
	s1 := g.Add("s1 = u-m3", "alu", 1)
	s2 := g.Add("u1 = s1-m5", "alu", 1)
	m6 := g.Add("m6 = u*dx", "mul", 2)
	a2 := g.Add("y1 = y+m6", "alu", 1)
	a1 := g.Add("x1 = x+dx", "alu", 1)
	c1 := g.Add("c = x1<a", "alu", 1)
	for _, e := range [][2]int{{m1, m3}, {m2, m3}, {m4, m5}, {m3, s1}, {s1, s2}, {m5, s2}, {m6, a2}, {a1, c1}} {
		if _, err := g.Flow(e[0], e[1]); err != nil {
			panic(err)
		}
	}
	g.Limit("mul", mulUnits)
	g.Limit("alu", 1)
	return g
}

type result struct {
	name string
	g    *sched.Graph
	c    *sched.Constraints
	err  error
}

func schedule(log logrus.FieldLogger, names []string, scale float64, mulUnits int) []*result {
	rs := make([]*result, len(names))
	jobs := make([]sched.Job, len(names))
	for i, n := range names {
		r := &result{name: n, g: diffeq(mulUnits), c: sched.NewConstraints()}
		r.c.SchedScale = scale
		r.c.Log = log.WithField("algo", n)
		a := algos[n]
		rs[i] = r
		jobs[i] = func() error { return a.run(r.g, r.c) }
	}
	for i, err := range sched.Parallel(0, jobs...) {
		rs[i].err = err
	}
	return rs
}

func printSchedule(r *result) {
	w := tabwriter.NewWriter(os.Stdout, 0, 8, 1, ' ', 0)
	fmt.Fprintf(w, "%s:\n", r.name)
	for _, i := range r.g.Instructions() {
		fmt.Fprintf(w, "\t%s\t%s\tc-step %d\n", r.g.Name(i), r.g.Class(i), r.g.CStep(i))
	}
	w.Flush()
}

func count(log logrus.FieldLogger, cycles int64) error {
	c := hlsim.NewContext(hlsim.WithLogger(log))
	clk, err := hwlib.Clock(1).NewPart(c, "clock", nil)
	if err != nil {
		return err
	}
	s, err := hwlib.Counter(8).NewPart(c, "counter", hwlib.Socket{"clk": clk["clk"]})
	if err != nil {
		return err
	}
	out := hwlib.Pins(s, "out", 8)
	if err = c.Elaborate(); err != nil {
		return err
	}
	start := time.Now()
	if err = c.Simulate(2 * cycles); err != nil {
		return err
	}
	fmt.Printf("counter: %d after %d cycles (%v simulated, %d delta cycles in %s)\n",
		out.Uint64(), cycles, c.CurrentTime(), c.DeltaCycleCount(), units.HumanDuration(time.Since(start)))
	return c.EndSimulation()
}

func main() {
	var (
		name    = flag.String("algo", "all", "scheduling algorithm: all, "+strings.Join(algoNames(), ", "))
		scale   = flag.Float64("scale", 1.1, "schedule length scale factor for force-directed scheduling")
		mul     = flag.Int("mul", 2, "number of multipliers for constrained algorithms")
		cycles  = flag.Int64("cycles", 100, "number of clock cycles to simulate")
		verbose = flag.Bool("v", false, "verbose output")
	)
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	names := algoNames()
	if *name != "all" {
		if _, ok := algos[*name]; !ok {
			log.Fatalf("unknown algorithm %q", *name)
		}
		names = []string{*name}
	}

	for _, r := range schedule(log, names, *scale, *mul) {
		if r.err != nil {
			log.WithError(r.err).WithField("algo", r.name).Error("scheduling failed")
			continue
		}
		if *name != "all" || *verbose {
			printSchedule(r)
		}
		l := log.WithFields(logrus.Fields{
			"algo":        r.name,
			"start":       r.c.StartTime,
			"end":         r.c.EndTime,
			"fingerprint": fmt.Sprintf("%016x", sched.Fingerprint(r.g, r.g.Instructions())),
		})
		if algos[r.name].constrained {
			l = l.WithField("mul", *mul)
		}
		l.Info("scheduled")
	}

	if err := count(log, *cycles); err != nil {
		log.WithError(err).Fatal("simulation failed")
	}
}
