/*
Package hlsim provides a discrete event simulation kernel for concurrent
hardware processes. Its companion package sched implements the high-level
synthesis schedulers that map the operations of a data-flow graph to control
steps.

A design is built in a Context: components own processes, processes wait on
events, signals fire events when their value changes.

	ctx := hlsim.NewContext()
	clk := hlsim.NewSignal(ctx, "clk", false)
	top := ctx.NewComponent("top")
	top.AddThread("clock", func(p *hlsim.Process) error {
		clk.Set(!clk.Cur())
		return p.DelayTime(5*hlsim.NS, nil)
	})
	if err := ctx.Elaborate(); err != nil {
		// ...
	}
	err := ctx.SimulateTime(100 * hlsim.NS)

Simulated time advances in ticks. Within a tick, activity runs in delta cycles:
all callbacks scheduled for the same tick run in the order they were
scheduled (evaluate phase), then signal updates are committed and the delta
cycle listeners run (update phase). Events fired during a delta cycle wake
their waiters in the next one.

The kernel is single threaded: process bodies never run concurrently.
Threaded processes suspend by handing a continuation to Wait or Delay.

*/
package hlsim
