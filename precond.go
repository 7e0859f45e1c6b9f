// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package solver

import (
	"errors"
	"time"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas64"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/vladimir-ch/solver/sparse"
)

// precond holds the state shared by the single-sweep preconditioners. Their
// Apply performs a fixed amount of work and reports it as one solve with no
// iterations and no defect norm.
type precond struct {
	base
	a Operator
	f Filter
	n int

	start time.Time
}

func newPrecond(name string, a Operator, f Filter) precond {
	return precond{base: base{name: name}, a: a, f: filterOrNone(f), n: dim(a)}
}

func (p *precond) InitSymbolic() error {
	p.symbolic = true
	return nil
}

func (p *precond) InitNumeric() error {
	if !p.symbolic {
		return ErrNotInitialized
	}
	p.initNumeric(p.a)
	return nil
}

func (p *precond) DoneNumeric() { p.numeric = false }

func (p *precond) DoneSymbolic() {
	p.numeric = false
	p.symbolic = false
}

func (p *precond) enter(cor, def []float64) error {
	if err := p.check(p.a, p.n, cor, def); err != nil {
		p.status = StatusUndefined
		return err
	}
	p.start = p.begin()
	return nil
}

func (p *precond) success(cor []float64) (Status, error) {
	p.f.FilterCor(cor)
	return p.finish(StatusSuccess, nil)
}

func (p *precond) finish(st Status, err error) (Status, error) {
	p.end(st, p.start, 0, 0)
	return st, err
}

// fail ends the solve after the failure err of an inner solve or
// factorization.
func (p *precond) fail(err error) (Status, error) {
	if IsStructural(err) {
		return p.finish(StatusUndefined, err)
	}
	return p.finish(StatusAborted, abort(p.name, 0, err))
}

// Diagonal is the preconditioner cor = d ∘ def for a fixed vector d, e.g.
// a lumped inverse mass matrix.
type Diagonal struct {
	precond
	d []float64
}

// NewDiagonal returns a Diagonal preconditioner for the system a that
// multiplies by d elementwise.
func NewDiagonal(a Operator, f Filter, d []float64) *Diagonal {
	p := &Diagonal{precond: newPrecond("Diagonal", a, f), d: d}
	if len(d) != p.n {
		panic("solver: dimension mismatch")
	}
	return p
}

// Apply implements the Solver interface.
func (p *Diagonal) Apply(cor, def []float64) (Status, error) {
	if err := p.enter(cor, def); err != nil {
		return StatusUndefined, err
	}
	floats.MulTo(cor, p.d, def)
	return p.success(cor)
}

// Scale is the preconditioner cor = Omega*def.
type Scale struct {
	precond
	Omega float64
}

// NewScale returns a Scale preconditioner for the system a.
func NewScale(a Operator, f Filter, omega float64) *Scale {
	return &Scale{precond: newPrecond("Scale", a, f), Omega: omega}
}

// Apply implements the Solver interface.
func (p *Scale) Apply(cor, def []float64) (Status, error) {
	if err := p.enter(cor, def); err != nil {
		return StatusUndefined, err
	}
	floats.ScaleTo(cor, p.Omega, def)
	return p.success(cor)
}

// MatrixPrecond is the preconditioner cor = M*def for an explicitly given
// approximate inverse M.
type MatrixPrecond struct {
	precond
	M Operator
}

// NewMatrixPrecond returns a MatrixPrecond for the system a applying m.
func NewMatrixPrecond(a Operator, f Filter, m Operator) *MatrixPrecond {
	p := &MatrixPrecond{precond: newPrecond("MatrixPrecond", a, f), M: m}
	if dim(m) != p.n {
		panic("solver: dimension mismatch")
	}
	return p
}

// Apply implements the Solver interface.
func (p *MatrixPrecond) Apply(cor, def []float64) (Status, error) {
	if err := p.enter(cor, def); err != nil {
		return StatusUndefined, err
	}
	p.M.MulVecTo(cor, def)
	return p.success(cor)
}

// Jacobi is the damped Jacobi preconditioner cor = Omega * D^{-1} def. For
// BCSR matrices D is the block diagonal and its blocks are inverted.
type Jacobi struct {
	precond
	Omega float64

	inv []float64
	bs  int
}

// NewJacobi returns a Jacobi preconditioner for the system a. The
// operator must be a *sparse.BCSR or provide its diagonal.
func NewJacobi(a Operator, f Filter, omega float64) *Jacobi {
	return &Jacobi{precond: newPrecond("Jacobi", a, f), Omega: omega}
}

// InitSymbolic implements the Solver interface.
func (p *Jacobi) InitSymbolic() error {
	switch p.a.(type) {
	case *sparse.BCSR, DiagonalExtractor:
	default:
		return &InvalidMatrixStructureError{Solver: p.name, Reason: "operator provides no diagonal"}
	}
	p.symbolic = true
	return nil
}

// InitNumeric implements the Solver interface.
func (p *Jacobi) InitNumeric() error {
	if !p.symbolic {
		return ErrNotInitialized
	}
	switch a := p.a.(type) {
	case *sparse.BCSR:
		bs := a.BlockSize()
		nb, _ := a.BlockDims()
		p.bs = bs
		p.inv = reuse(p.inv, nb*bs*bs)
		var inv mat.Dense
		for bi := 0; bi < nb; bi++ {
			blk := a.Block(bi, bi)
			if blk == nil {
				return &SingularMatrixError{Solver: p.name, Row: bi * bs}
			}
			err := inv.Inverse(mat.NewDense(bs, bs, append([]float64(nil), blk...)))
			if err != nil {
				return &SingularMatrixError{Solver: p.name, Row: bi * bs}
			}
			copy(p.inv[bi*bs*bs:(bi+1)*bs*bs], inv.RawMatrix().Data)
			inv.Reset()
		}
	case DiagonalExtractor:
		p.bs = 1
		p.inv = reuse(p.inv, p.n)
		a.Diagonal(p.inv)
		for i, d := range p.inv {
			if d == 0 {
				return &SingularMatrixError{Solver: p.name, Row: i}
			}
			p.inv[i] = 1 / d
		}
	}
	p.initNumeric(p.a)
	return nil
}

// Apply implements the Solver interface.
func (p *Jacobi) Apply(cor, def []float64) (Status, error) {
	if err := p.enter(cor, def); err != nil {
		return StatusUndefined, err
	}
	if p.bs == 1 {
		floats.MulTo(cor, p.inv, def)
		floats.Scale(p.Omega, cor)
		return p.success(cor)
	}
	bs := p.bs
	for bi := 0; bi < p.n/bs; bi++ {
		blas64.Gemv(blas.NoTrans, p.Omega,
			blas64.General{Rows: bs, Cols: bs, Stride: bs, Data: p.inv[bi*bs*bs : (bi+1)*bs*bs]},
			blas64.Vector{N: bs, Inc: 1, Data: def[bi*bs : (bi+1)*bs]},
			0, blas64.Vector{N: bs, Inc: 1, Data: cor[bi*bs : (bi+1)*bs]})
	}
	return p.success(cor)
}

// Polynomial is the preconditioner given by the truncated Neumann series
//  M^{-1} = sum_{k=0}^{Degree} (I - ω D^{-1} A)^k ω D^{-1}
// of the damped Jacobi iteration.
type Polynomial struct {
	precond
	Degree int
	Omega  float64

	jac      *Jacobi
	tmp, upd []float64
}

// NewPolynomial returns a Polynomial preconditioner of the given degree.
func NewPolynomial(a Operator, f Filter, degree int, omega float64) *Polynomial {
	return &Polynomial{
		precond: newPrecond("Polynomial", a, f),
		Degree:  degree,
		Omega:   omega,
		jac:     NewJacobi(a, nil, omega),
	}
}

// InitSymbolic implements the Solver interface.
func (p *Polynomial) InitSymbolic() error {
	if p.Degree < 0 {
		return &ConfigError{Section: p.name, Key: "degree", Reason: "negative degree"}
	}
	if err := p.jac.InitSymbolic(); err != nil {
		return err
	}
	p.tmp = reuse(p.tmp, p.n)
	p.upd = reuse(p.upd, p.n)
	p.symbolic = true
	return nil
}

// InitNumeric implements the Solver interface.
func (p *Polynomial) InitNumeric() error {
	if !p.symbolic {
		return ErrNotInitialized
	}
	p.jac.Omega = p.Omega
	if err := p.jac.InitNumeric(); err != nil {
		var sme *SingularMatrixError
		if errors.As(err, &sme) {
			sme.Solver = p.name
		}
		return err
	}
	p.initNumeric(p.a)
	return nil
}

// Apply implements the Solver interface.
func (p *Polynomial) Apply(cor, def []float64) (Status, error) {
	if err := p.enter(cor, def); err != nil {
		return StatusUndefined, err
	}
	if _, err := p.jac.Apply(cor, def); err != nil {
		return p.fail(err)
	}
	for k := 0; k < p.Degree; k++ {
		// cor += ω D^{-1} (def - A cor)
		p.a.MulVecTo(p.tmp, cor)
		floats.SubTo(p.tmp, def, p.tmp)
		p.f.FilterDef(p.tmp)
		if _, err := p.jac.Apply(p.upd, p.tmp); err != nil {
			return p.finish(StatusAborted, abort(p.name, k, err))
		}
		floats.Add(cor, p.upd)
	}
	return p.success(cor)
}
