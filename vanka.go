// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package solver

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/mat"

	"github.com/vladimir-ch/solver/sparse"
)

// VankaType selects the patches, the local matrices and the update order of
// a Vanka smoother.
//
// Nodal patches consist of one pressure unknown and all velocity unknowns
// coupled to it, block patches of a group of pressure unknowns and their
// velocity unknowns. Diagonal variants replace the velocity block of the
// local matrix by its diagonal, full variants keep it. Multiplicative
// variants update the defect after every patch, additive variants average
// the local corrections computed from the same defect.
type VankaType int

const (
	VankaNodalDiagMult VankaType = iota
	VankaNodalFullMult
	VankaBlockDiagMult
	VankaBlockFullMult
	VankaNodalDiagAdd
	VankaNodalFullAdd
	VankaBlockDiagAdd
	VankaBlockFullAdd
)

var vankaStrings = [...]string{
	VankaNodalDiagMult: "nodal_diag_mult",
	VankaNodalFullMult: "nodal_full_mult",
	VankaBlockDiagMult: "block_diag_mult",
	VankaBlockFullMult: "block_full_mult",
	VankaNodalDiagAdd:  "nodal_diag_add",
	VankaNodalFullAdd:  "nodal_full_add",
	VankaBlockDiagAdd:  "block_diag_add",
	VankaBlockFullAdd:  "block_full_add",
}

func (t VankaType) String() string {
	if t < 0 || int(t) >= len(vankaStrings) {
		return "unknown"
	}
	return vankaStrings[t]
}

// ParseVankaType returns the VankaType called name.
func ParseVankaType(name string) (VankaType, error) {
	for t, s := range vankaStrings {
		if s == name {
			return VankaType(t), nil
		}
	}
	return 0, fmt.Errorf("unknown Vanka type %q", name)
}

func (t VankaType) block() bool {
	switch t {
	case VankaBlockDiagMult, VankaBlockFullMult, VankaBlockDiagAdd, VankaBlockFullAdd:
		return true
	}
	return false
}

func (t VankaType) full() bool {
	switch t {
	case VankaNodalFullMult, VankaBlockFullMult, VankaNodalFullAdd, VankaBlockFullAdd:
		return true
	}
	return false
}

func (t VankaType) additive() bool { return t >= VankaNodalDiagAdd }

// VankaPolicy decides what happens when a local matrix is singular.
type VankaPolicy int

const (
	// VankaFatal makes InitNumeric fail with a *VankaFactorError.
	VankaFatal VankaPolicy = iota
	// VankaRegularize shifts the diagonal of the local matrix by
	// Regularization times its largest diagonal entry and retries.
	VankaRegularize
)

// Vanka is the patch-wise smoother for saddle-point systems [A B; D 0]. The
// operator must be a *sparse.SaddlePoint.
type Vanka struct {
	precond
	Type   VankaType
	Policy VankaPolicy

	// Omega is the damping of the local corrections.
	Omega float64
	// Blocks are the pressure unknowns of the block patches. If nil,
	// consecutive pressure unknowns are grouped in pairs.
	Blocks [][]int
	// Regularization is the relative diagonal shift of VankaRegularize.
	Regularization float64

	m          *sparse.SaddlePoint
	at, bt, dt *sparse.CSR
	patches    []vankaPatch
	d, count   []float64
}

type vankaPatch struct {
	vel, pres []int
	lu        mat.LU
	x, b      *mat.VecDense
}

// NewVanka returns a Vanka smoother of type t for the saddle-point system
// a with damping omega.
func NewVanka(a Operator, f Filter, t VankaType, omega float64) *Vanka {
	return &Vanka{
		precond:        newPrecond("Vanka", a, f),
		Type:           t,
		Omega:          omega,
		Regularization: 1e-8,
	}
}

// InitSymbolic implements the Solver interface.
func (p *Vanka) InitSymbolic() error {
	m, ok := p.a.(*sparse.SaddlePoint)
	if !ok {
		return &InvalidMatrixStructureError{Solver: p.name, Reason: "operator is not a saddle-point matrix"}
	}
	p.m = m
	_, np := m.Split()
	groups := p.Blocks
	if !p.Type.block() {
		groups = make([][]int, np)
		for k := range groups {
			groups[k] = []int{k}
		}
	} else if groups == nil {
		for k := 0; k < np; k += 2 {
			g := []int{k}
			if k+1 < np {
				g = append(g, k+1)
			}
			groups = append(groups, g)
		}
	}
	bt := m.B.Transpose()
	p.patches = p.patches[:0]
	for _, g := range groups {
		var vel []int
		for _, k := range g {
			if k < 0 || np <= k {
				return &InvalidMatrixStructureError{Solver: p.name, Reason: fmt.Sprintf("pressure index %d out of range", k)}
			}
			cols, _ := m.D.Row(k)
			vel = append(vel, cols...)
			cols, _ = bt.Row(k)
			vel = append(vel, cols...)
		}
		slices.Sort(vel)
		vel = slices.Compact(vel)
		nl := len(vel) + len(g)
		p.patches = append(p.patches, vankaPatch{
			vel:  vel,
			pres: append([]int(nil), g...),
			x:    mat.NewVecDense(nl, nil),
			b:    mat.NewVecDense(nl, nil),
		})
	}
	p.d = reuse(p.d, p.n)
	p.count = reuse(p.count, p.n)
	p.symbolic = true
	return nil
}

// InitNumeric implements the Solver interface.
func (p *Vanka) InitNumeric() error {
	if !p.symbolic {
		return ErrNotInitialized
	}
	m := p.m
	p.at = m.A.Transpose()
	p.bt = m.B.Transpose()
	p.dt = m.D.Transpose()
	for i := range p.patches {
		if err := p.factorize(i); err != nil {
			return err
		}
	}
	p.initNumeric(p.a)
	return nil
}

// factorize assembles and factorizes the local matrix of patch i.
func (p *Vanka) factorize(i int) error {
	pt := &p.patches[i]
	m := p.m
	nv := len(pt.vel)
	nl := nv + len(pt.pres)
	k := mat.NewDense(nl, nl, nil)
	scale := 0.0
	for r, vi := range pt.vel {
		for c, vj := range pt.vel {
			if r == c || p.Type.full() {
				k.Set(r, c, m.A.At(vi, vj))
			}
		}
		scale = math.Max(scale, math.Abs(k.At(r, r)))
		for c, pk := range pt.pres {
			k.Set(r, nv+c, m.B.At(vi, pk))
			k.Set(nv+c, r, m.D.At(pk, vi))
		}
	}
	pt.lu.Factorize(k)
	if !singular(&pt.lu) {
		return nil
	}
	if p.Policy != VankaRegularize {
		return &VankaFactorError{Patch: i, Err: &SingularMatrixError{Solver: p.name, Row: -1, Cond: pt.lu.Cond()}}
	}
	if scale == 0 {
		scale = 1
	}
	shift := p.Regularization * scale
	for r := 0; r < nl; r++ {
		if r < nv {
			k.Set(r, r, k.At(r, r)+shift)
		} else {
			k.Set(r, r, k.At(r, r)-shift)
		}
	}
	pt.lu.Factorize(k)
	if singular(&pt.lu) {
		return &VankaFactorError{Patch: i, Err: &SingularMatrixError{Solver: p.name, Row: -1, Cond: pt.lu.Cond()}}
	}
	return nil
}

func singular(lu *mat.LU) bool {
	c := lu.Cond()
	return math.IsInf(c, 0) || math.IsNaN(c) || c > 1/dlamchE
}

// Apply implements the Solver interface.
func (p *Vanka) Apply(cor, def []float64) (Status, error) {
	if err := p.enter(cor, def); err != nil {
		return StatusUndefined, err
	}
	nu, _ := p.m.Split()
	zero(cor)
	copy(p.d, def)
	if p.Type.additive() {
		zero(p.count)
	}
	for i := range p.patches {
		pt := &p.patches[i]
		nv := len(pt.vel)
		b := pt.b.RawVector().Data
		for r, vi := range pt.vel {
			b[r] = p.d[vi]
		}
		for c, pk := range pt.pres {
			b[nv+c] = p.d[nu+pk]
		}
		if err := pt.lu.SolveVecTo(pt.x, false, pt.b); err != nil {
			if _, ok := err.(mat.Condition); !ok {
				return p.fail(&VankaFactorError{Patch: i, Err: err})
			}
		}
		x := pt.x.RawVector().Data
		if p.Type.additive() {
			for r, vi := range pt.vel {
				cor[vi] += x[r]
				p.count[vi]++
			}
			for c, pk := range pt.pres {
				cor[nu+pk] += x[nv+c]
				p.count[nu+pk]++
			}
			continue
		}
		for r, vi := range pt.vel {
			p.update(cor, vi, nu, p.Omega*x[r], false)
		}
		for c, pk := range pt.pres {
			p.update(cor, nu+pk, nu, p.Omega*x[nv+c], true)
		}
	}
	if p.Type.additive() {
		for i, c := range p.count {
			if c > 0 {
				cor[i] *= p.Omega / c
			}
		}
	}
	return p.success(cor)
}

// update adds delta to cor[g] and removes its contribution from the
// working defect.
func (p *Vanka) update(cor []float64, g, nu int, delta float64, pressure bool) {
	if delta == 0 {
		return
	}
	cor[g] += delta
	if pressure {
		rows, vals := p.bt.Row(g - nu)
		for k, r := range rows {
			p.d[r] -= vals[k] * delta
		}
		return
	}
	rows, vals := p.at.Row(g)
	for k, r := range rows {
		p.d[r] -= vals[k] * delta
	}
	rows, vals = p.dt.Row(g)
	for k, r := range rows {
		p.d[nu+r] -= vals[k] * delta
	}
}
