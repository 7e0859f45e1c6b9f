// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package solver

import "fmt"

// Comm is the messaging capability used by distributed preconditioners.
// All collective operations block until every rank of the group has
// entered them, and must be called by all ranks in the same order.
type Comm interface {
	Rank() int
	Size() int

	// AllReduceSum replaces buf on every rank by the elementwise sum of buf
	// over all ranks.
	AllReduceSum(buf []float64) error
}

// SerialComm is the Comm of a single process.
type SerialComm struct{}

func (SerialComm) Rank() int                    { return 0 }
func (SerialComm) Size() int                    { return 1 }
func (SerialComm) AllReduceSum([]float64) error { return nil }

// NewChanComms returns n communicators connected through channels. They
// are meant to be used by n goroutines of one process, one each.
func NewChanComms(n int) []Comm {
	if n <= 0 {
		panic("solver: communicator size not positive")
	}
	g := &chanGroup{
		n:        n,
		toRoot:   make(chan []float64, n),
		fromRoot: make([]chan []float64, n),
	}
	comms := make([]Comm, n)
	for r := range comms {
		g.fromRoot[r] = make(chan []float64, 1)
		comms[r] = &chanComm{g: g, rank: r}
	}
	return comms
}

type chanGroup struct {
	n        int
	toRoot   chan []float64
	fromRoot []chan []float64
}

type chanComm struct {
	g    *chanGroup
	rank int
}

func (c *chanComm) Rank() int { return c.rank }
func (c *chanComm) Size() int { return c.g.n }

func (c *chanComm) AllReduceSum(buf []float64) error {
	g := c.g
	if c.rank != 0 {
		g.toRoot <- append([]float64(nil), buf...)
		sum := <-g.fromRoot[c.rank]
		if len(sum) != len(buf) {
			return fmt.Errorf("solver: AllReduceSum: rank %d buffer length %d, root %d", c.rank, len(buf), len(sum))
		}
		copy(buf, sum)
		return nil
	}
	var err error
	for i := 1; i < g.n; i++ {
		part := <-g.toRoot
		if len(part) != len(buf) {
			err = fmt.Errorf("solver: AllReduceSum: buffer length %d, root %d", len(part), len(buf))
			continue
		}
		for k, v := range part {
			buf[k] += v
		}
	}
	for r := 1; r < g.n; r++ {
		g.fromRoot[r] <- append([]float64(nil), buf...)
	}
	return err
}
