// Package qp formulates the receding horizon optimization of a constrained
// linear MPC as a convex quadratic program.
//
// The decision vector stacks the predicted state and input trajectories,
//
//	z = [x₀ … x_Np | u₀ … u_Np₋₁]
//
// and the program structure (Hessian and constraint matrix) is built once.
// Only the current plant state and the previously applied input enter the
// program as parameters: updating them rewrites a handful of cost and bound
// entries in place, which is what lets a solver warm start across samples.
package qp

import (
	"fmt"
	"math"

	mpc "github.com/milosgajdos/go-mpc"
	"github.com/milosgajdos/go-mpc/matrix"
	"github.com/milosgajdos/go-mpc/sim"
	"gonum.org/v1/gonum/mat"
)

// Weights are the objective weight matrices of the horizon cost.
type Weights struct {
	// Qy penalizes stage output tracking error
	Qy mat.Symmetric
	// QyN penalizes terminal output tracking error
	QyN mat.Symmetric
	// Qu penalizes input effort
	Qu mat.Symmetric
	// QDu penalizes input rate of change
	QDu mat.Symmetric
}

// Bounds are elementwise constraint bounds broadcast across the horizon.
// A nil vector means the corresponding side is unconstrained.
type Bounds struct {
	// Ymin/Ymax bound the plant output
	Ymin, Ymax mat.Vector
	// Umin/Umax bound the plant input
	Umin, Umax mat.Vector
	// DUmin/DUmax bound the input change between consecutive samples
	DUmin, DUmax mat.Vector
}

// Builder holds the formulated QP of a constrained linear MPC
// together with the bookkeeping needed to update its parameters.
type Builder struct {
	prob *mpc.Problem
	np   int
	nx   int
	nu   int
	ny   int
	// uoff is the column offset of the input trajectory block
	uoff int
	// rateRow is the row offset of the k=0 input rate constraint
	rateRow int
	// qduNeg is -2*QDu, applied to the previous input cost term
	qduNeg *mat.Dense
	// q0 is the parameter independent part of the u₀ linear cost
	q0 *mat.VecDense
	// rate bounds needed to shift the k=0 rate rows
	dumin *mat.VecDense
	dumax *mat.VecDense
}

// NewBuilder formulates the horizon QP for the given prediction model,
// horizon length np, weights, bounds and constant output reference ref.
// It returns error if either of the following conditions is met:
//   - np is not positive or model dimensions are not positive integers
//   - weight matrix dimensions do not match the model dimensions
//   - constraint bounds have wrong dimensions or are not ordered
func NewBuilder(model *sim.Discrete, np int, w Weights, b Bounds, ref mat.Vector) (*Builder, error) {
	if model == nil {
		return nil, fmt.Errorf("invalid prediction model")
	}

	nx, nu, ny := model.SystemDims()
	if np < 1 {
		return nil, fmt.Errorf("invalid horizon length: %d", np)
	}
	if nx <= 0 || nu <= 0 || ny <= 0 {
		return nil, fmt.Errorf("invalid model dimensions: [%d %d %d]", nx, nu, ny)
	}

	if err := validateWeights(w, nu, ny); err != nil {
		return nil, err
	}

	if err := validateBounds(b, nu, ny); err != nil {
		return nil, err
	}

	if ref == nil || ref.Len() != ny {
		return nil, fmt.Errorf("invalid reference dimension")
	}

	n := nx*(np+1) + nu*np
	meq := nx * (np + 1)
	my := ny * np
	mrate := nu * np
	m := meq + my + mrate

	bld := &Builder{
		np:      np,
		nx:      nx,
		nu:      nu,
		ny:      ny,
		uoff:    nx * (np + 1),
		rateRow: meq + my,
		dumin:   boundOrInf(b.DUmin, nu, math.Inf(-1)),
		dumax:   boundOrInf(b.DUmax, nu, math.Inf(1)),
	}

	prob := &mpc.Problem{
		P:  mat.NewDense(n, n, nil),
		Q:  mat.NewVecDense(n, nil),
		A:  mat.NewDense(m, n, nil),
		L:  mat.NewVecDense(m, nil),
		U:  mat.NewVecDense(m, nil),
		Lb: make([]float64, n),
		Ub: make([]float64, n),
	}
	bld.prob = prob

	bld.buildObjective(model, w, ref)
	bld.buildConstraints(model, b)

	if err := prob.Validate(); err != nil {
		return nil, err
	}

	return bld, nil
}

// buildObjective assembles the Hessian P and the linear term q using
// the ½ zᵀPz + qᵀz convention: every quadratic weight enters P doubled.
func (b *Builder) buildObjective(model *sim.Discrete, w Weights, ref mat.Vector) {
	P, q := b.prob.P, b.prob.Q
	C, D := model.C, model.D

	// stage tracking: xₖᵀ(2CᵀQyC)xₖ with D cross terms
	cqc := scaledProd(2.0, C.T(), w.Qy, C)
	cqcN := scaledProd(2.0, C.T(), w.QyN, C)

	// -2CᵀQy r tracking gradient
	cqr := scaledProd(-2.0, C.T(), w.Qy, ref)
	cqrN := scaledProd(-2.0, C.T(), w.QyN, ref)

	qu2 := new(mat.Dense)
	qu2.Scale(2.0, denseOf(w.Qu))

	qdu2 := new(mat.Dense)
	qdu2.Scale(2.0, denseOf(w.QDu))

	b.qduNeg = new(mat.Dense)
	b.qduNeg.Scale(-1.0, qdu2)

	for k := 0; k < b.np; k++ {
		xi, ui := b.xcol(k), b.ucol(k)

		matrix.AddBlock(P, xi, xi, cqc)
		matrix.AddBlock(P, ui, ui, qu2)
		setVec(q, xi, cqr.ColView(0))

		if D != nil {
			// feedthrough couples xₖ and uₖ in the tracking cost
			cqd := scaledProd(2.0, C.T(), w.Qy, D)
			dqd := scaledProd(2.0, D.T(), w.Qy, D)
			dqr := scaledProd(-2.0, D.T(), w.Qy, ref)

			matrix.AddBlock(P, xi, ui, cqd)
			matrix.AddBlock(P, ui, xi, cqd.T())
			matrix.AddBlock(P, ui, ui, dqd)
			addVec(q, ui, dqr.ColView(0))
		}

		// input rate: uₖ couples to uₖ₋₁, u₀ couples to the u₋₁ parameter
		matrix.AddBlock(P, ui, ui, qdu2)
		if k > 0 {
			up := b.ucol(k - 1)
			matrix.AddBlock(P, up, up, qdu2)
			matrix.AddBlock(P, ui, up, b.qduNeg)
			matrix.AddBlock(P, up, ui, b.qduNeg)
		}
	}

	// terminal tracking stage
	xn := b.xcol(b.np)
	matrix.AddBlock(P, xn, xn, cqcN)
	setVec(q, xn, cqrN.ColView(0))

	// remember the parameter independent u₀ cost so SetPrevInput
	// can rewrite the parametric part alone
	b.q0 = mat.NewVecDense(b.nu, nil)
	for i := 0; i < b.nu; i++ {
		b.q0.SetVec(i, q.AtVec(b.uoff+i))
	}
}

// buildConstraints assembles the constraint matrix A and its row bounds
// together with the variable box bounds.
func (b *Builder) buildConstraints(model *sim.Discrete, bnd Bounds) {
	A, L, U := b.prob.A, b.prob.L, b.prob.U

	negA := new(mat.Dense)
	negA.Scale(-1.0, model.A)
	negB := new(mat.Dense)
	negB.Scale(-1.0, model.B)
	eyeX := matrix.Eye(b.nx, 1.0)
	eyeU := matrix.Eye(b.nu, 1.0)
	negEyeU := matrix.Eye(b.nu, -1.0)

	// x₀ = x_init; values are parametric, written by SetState
	matrix.SetBlock(A, 0, b.xcol(0), eyeX)

	// dynamics: x_{k+1} - A xₖ - B uₖ = 0
	for k := 0; k < b.np; k++ {
		row := b.nx * (k + 1)
		matrix.SetBlock(A, row, b.xcol(k+1), eyeX)
		matrix.SetBlock(A, row, b.xcol(k), negA)
		matrix.SetBlock(A, row, b.ucol(k), negB)
	}

	// output: ymin ≤ C xₖ + D uₖ ≤ ymax
	ymin := boundOrInf(bnd.Ymin, b.ny, math.Inf(-1))
	ymax := boundOrInf(bnd.Ymax, b.ny, math.Inf(1))
	orow := b.nx * (b.np + 1)
	for k := 0; k < b.np; k++ {
		row := orow + b.ny*k
		matrix.SetBlock(A, row, b.xcol(k), model.C)
		if model.D != nil {
			matrix.SetBlock(A, row, b.ucol(k), model.D)
		}
		for i := 0; i < b.ny; i++ {
			L.SetVec(row+i, ymin.AtVec(i))
			U.SetVec(row+i, ymax.AtVec(i))
		}
	}

	// input rate: Δumin ≤ uₖ - uₖ₋₁ ≤ Δumax; the k=0 rows are against
	// the u₋₁ parameter and are rewritten by SetPrevInput
	for k := 0; k < b.np; k++ {
		row := b.rateRow + b.nu*k
		matrix.SetBlock(A, row, b.ucol(k), eyeU)
		if k > 0 {
			matrix.SetBlock(A, row, b.ucol(k-1), negEyeU)
		}
		for i := 0; i < b.nu; i++ {
			L.SetVec(row+i, b.dumin.AtVec(i))
			U.SetVec(row+i, b.dumax.AtVec(i))
		}
	}

	// variable box: states free, inputs bounded elementwise
	umin := boundOrInf(bnd.Umin, b.nu, math.Inf(-1))
	umax := boundOrInf(bnd.Umax, b.nu, math.Inf(1))
	for i := 0; i < b.uoff; i++ {
		b.prob.Lb[i] = math.Inf(-1)
		b.prob.Ub[i] = math.Inf(1)
	}
	for k := 0; k < b.np; k++ {
		for i := 0; i < b.nu; i++ {
			b.prob.Lb[b.ucol(k)+i] = umin.AtVec(i)
			b.prob.Ub[b.ucol(k)+i] = umax.AtVec(i)
		}
	}
}

// Problem returns the formulated program. The returned problem is shared
// with the builder: parameter updates mutate it in place.
func (b *Builder) Problem() *mpc.Problem { return b.prob }

// Horizon returns the prediction horizon length.
func (b *Builder) Horizon() int { return b.np }

// SetState sets the current plant state parameter x_init.
// It returns error if x has invalid dimension.
func (b *Builder) SetState(x mat.Vector) error {
	if x == nil || x.Len() != b.nx {
		return fmt.Errorf("invalid state vector")
	}

	for i := 0; i < b.nx; i++ {
		b.prob.L.SetVec(i, x.AtVec(i))
		b.prob.U.SetVec(i, x.AtVec(i))
	}
	return nil
}

// SetPrevInput sets the previously applied input parameter u₋₁:
// it shifts the k=0 input rate rows and rewrites the u₀ linear cost.
// It returns error if u has invalid dimension.
func (b *Builder) SetPrevInput(u mat.Vector) error {
	if u == nil || u.Len() != b.nu {
		return fmt.Errorf("invalid input vector")
	}

	for i := 0; i < b.nu; i++ {
		if lo := b.dumin.AtVec(i); !math.IsInf(lo, -1) {
			b.prob.L.SetVec(b.rateRow+i, lo+u.AtVec(i))
		}
		if hi := b.dumax.AtVec(i); !math.IsInf(hi, 1) {
			b.prob.U.SetVec(b.rateRow+i, hi+u.AtVec(i))
		}
	}

	// q_u₀ = q₀ - 2*QDu*u₋₁
	du := new(mat.Dense)
	du.Mul(b.qduNeg, u)
	for i := 0; i < b.nu; i++ {
		b.prob.Q.SetVec(b.uoff+i, b.q0.AtVec(i)+du.At(i, 0))
	}
	return nil
}

// FirstInput extracts the first predicted input u₀ from the solution
// decision vector z and returns a copy of it.
// It returns error if z has invalid dimension.
func (b *Builder) FirstInput(z mat.Vector) (*mat.VecDense, error) {
	n, _ := b.prob.Dims()
	if z == nil || z.Len() != n {
		return nil, fmt.Errorf("invalid decision vector")
	}

	u := mat.NewVecDense(b.nu, nil)
	for i := 0; i < b.nu; i++ {
		u.SetVec(i, z.AtVec(b.uoff+i))
	}
	return u, nil
}

// Trajectories splits the solution decision vector z into the predicted
// state trajectory (np+1 rows) and input trajectory (np rows).
// It returns error if z has invalid dimension.
func (b *Builder) Trajectories(z mat.Vector) (x, u *mat.Dense, err error) {
	n, _ := b.prob.Dims()
	if z == nil || z.Len() != n {
		return nil, nil, fmt.Errorf("invalid decision vector")
	}

	x = mat.NewDense(b.np+1, b.nx, nil)
	for k := 0; k <= b.np; k++ {
		for i := 0; i < b.nx; i++ {
			x.Set(k, i, z.AtVec(b.xcol(k)+i))
		}
	}

	u = mat.NewDense(b.np, b.nu, nil)
	for k := 0; k < b.np; k++ {
		for i := 0; i < b.nu; i++ {
			u.Set(k, i, z.AtVec(b.ucol(k)+i))
		}
	}
	return x, u, nil
}

func (b *Builder) xcol(k int) int { return b.nx * k }

func (b *Builder) ucol(k int) int { return b.uoff + b.nu*k }

func validateWeights(w Weights, nu, ny int) error {
	if w.Qy == nil || w.Qy.SymmetricDim() != ny {
		return fmt.Errorf("invalid output weight dimension")
	}
	if w.QyN == nil || w.QyN.SymmetricDim() != ny {
		return fmt.Errorf("invalid terminal output weight dimension")
	}
	if w.Qu == nil || w.Qu.SymmetricDim() != nu {
		return fmt.Errorf("invalid input weight dimension")
	}
	if w.QDu == nil || w.QDu.SymmetricDim() != nu {
		return fmt.Errorf("invalid input rate weight dimension")
	}
	return nil
}

func validateBounds(b Bounds, nu, ny int) error {
	pairs := []struct {
		name     string
		min, max mat.Vector
		dim      int
	}{
		{"output", b.Ymin, b.Ymax, ny},
		{"input", b.Umin, b.Umax, nu},
		{"input rate", b.DUmin, b.DUmax, nu},
	}

	for _, p := range pairs {
		if p.min != nil && p.min.Len() != p.dim {
			return fmt.Errorf("invalid %s lower bound dimension: %d != %d", p.name, p.min.Len(), p.dim)
		}
		if p.max != nil && p.max.Len() != p.dim {
			return fmt.Errorf("invalid %s upper bound dimension: %d != %d", p.name, p.max.Len(), p.dim)
		}
		if p.min == nil || p.max == nil {
			continue
		}
		for i := 0; i < p.dim; i++ {
			if p.min.AtVec(i) >= p.max.AtVec(i) {
				return fmt.Errorf("%s bounds not ordered at index %d", p.name, i)
			}
		}
	}
	return nil
}

func boundOrInf(v mat.Vector, dim int, inf float64) *mat.VecDense {
	out := mat.NewVecDense(dim, nil)
	for i := 0; i < dim; i++ {
		if v != nil {
			out.SetVec(i, v.AtVec(i))
			continue
		}
		out.SetVec(i, inf)
	}
	return out
}

// scaledProd returns s * a*b*c as a fresh dense matrix.
func scaledProd(s float64, a, b, c mat.Matrix) *mat.Dense {
	tmp := new(mat.Dense)
	tmp.Mul(b, c)

	out := new(mat.Dense)
	out.Mul(a, tmp)
	out.Scale(s, out)
	return out
}

func denseOf(m mat.Matrix) *mat.Dense {
	if d, ok := m.(*mat.Dense); ok {
		return d
	}
	return mat.DenseCopyOf(m)
}

func setVec(q *mat.VecDense, off int, v mat.Vector) {
	for i := 0; i < v.Len(); i++ {
		q.SetVec(off+i, v.AtVec(i))
	}
}

func addVec(q *mat.VecDense, off int, v mat.Vector) {
	for i := 0; i < v.Len(); i++ {
		q.SetVec(off+i, q.AtVec(off+i)+v.AtVec(i))
	}
}
