// Copyright 2018 Denis Bernard <db047h@gmail.com>
// Licensed under the MIT license. See license text in the LICENSE file.

package sched

import (
	"encoding/binary"
	"runtime"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// A Job is a scheduling run.
//
type Job func() error

// Parallel runs jobs on a pool of worker goroutines and returns the error
// returned by each job. If workers is 0, GOMAXPROCS workers are used.
//
// Schedulers are not safe for concurrent use over the same instructions:
// jobs must work on disjoint instruction sets, or on distinct adapters.
//
func Parallel(workers int, jobs ...Job) []error {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(-1)
	}
	if workers > len(jobs) {
		workers = len(jobs)
	}
	errs := make([]error, len(jobs))
	jc := make(chan int)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			for n := range jc {
				errs[n] = jobs[n]()
			}
			wg.Done()
		}()
	}
	for n := range jobs {
		jc <- n
	}
	close(jc)
	wg.Wait()
	return errs
}

// Fingerprint returns a hash of the c-steps of instrs. Two runs that produce
// the same schedule have the same fingerprint.
//
func Fingerprint(a Adapter, instrs []int) uint64 {
	d := xxhash.New()
	var b [16]byte
	for _, i := range instrs {
		binary.LittleEndian.PutUint64(b[:8], uint64(i))
		binary.LittleEndian.PutUint64(b[8:], uint64(a.CStep(i)))
		d.Write(b[:])
	}
	return d.Sum64()
}
