// Copyright 2018 Denis Bernard <db047h@gmail.com>
// Licensed under the MIT license. See license text in the LICENSE file.

package sched_test

import (
	"fmt"

	"github.com/db47h/hlsim/sched"
)

func Example() {
	g := sched.NewGraph()
	mul := g.Add("mul", "mul", 2)
	add := g.Add("add", "alu", 1)
	g.Add("sub", "alu", 1)
	if _, err := g.Flow(mul, add); err != nil {
		panic(err)
	}

	c := sched.NewConstraints()
	if err := sched.ASAP.Schedule(g, g.Instructions(), c); err != nil {
		panic(err)
	}
	for _, i := range g.Instructions() {
		fmt.Printf("%s: %d\n", g.Name(i), g.CStep(i))
	}
	fmt.Println("end:", c.EndTime)

	// Output:
	// mul: 0
	// add: 2
	// sub: 0
	// end: 3
}
