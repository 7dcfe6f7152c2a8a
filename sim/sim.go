package sim

import "gonum.org/v1/gonum/mat"

// InitCond is the initial condition of a closed control loop:
// the initial plant state and the input applied one sample in the past.
type InitCond struct {
	state *mat.VecDense
	input *mat.VecDense
}

// NewInitCond creates new InitCond and returns it.
// input is the "previous" input at time instant -1; conventionally zero
// when no prior command exists.
func NewInitCond(state, input mat.Vector) *InitCond {
	s := &mat.VecDense{}
	s.CloneFromVec(state)

	u := &mat.VecDense{}
	u.CloneFromVec(input)

	return &InitCond{
		state: s,
		input: u,
	}
}

// State returns initial plant state
func (c *InitCond) State() mat.Vector {
	state := mat.NewVecDense(c.state.Len(), nil)
	state.CloneFromVec(c.state)

	return state
}

// Input returns the input applied one sample before the loop starts
func (c *InitCond) Input() mat.Vector {
	input := mat.NewVecDense(c.input.Len(), nil)
	input.CloneFromVec(c.input)

	return input
}
