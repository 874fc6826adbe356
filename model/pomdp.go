package model

import (
	"fmt"
	"math"

	xrand "golang.org/x/exp/rand"

	"github.com/milosgajdos/go-bayes/rand"
)

// POMDP is a Partially Observable Markov Decision Process with finite state,
// action and observation spaces. Its transition and observation models are
// probability tables. POMDP is immutable once created.
type POMDP struct {
	// states, actions and observations are space element labels
	states       []string
	actions      []string
	observations []string
	// t is transition table: t[a][s][sn] = P(sn|s,a)
	t [][][]float64
	// o is observation table: o[a][sn][ob] = P(ob|a,sn)
	o [][][]float64
	// reward is immediate reward table: reward[s][a]
	reward [][]float64
	// discount is reward discount factor
	discount float64
}

// NewPOMDP creates new POMDP from the given spaces and probability tables.
// The transition table is indexed as t[action][state][next state], the
// observation table as o[action][next state][observation]. The reward table
// and discount factor are carried for planners; filters don't use them.
// It returns error if the table dimensions don't match the spaces or if any
// probability row does not sum to 1.
func NewPOMDP(states, actions, observations []string, t, o [][][]float64, reward [][]float64, discount float64) (*POMDP, error) {
	ns, na, no := len(states), len(actions), len(observations)
	if ns == 0 || na == 0 || no == 0 {
		return nil, fmt.Errorf("invalid space dimensions: [%d x %d x %d]", ns, na, no)
	}

	if len(t) != na {
		return nil, fmt.Errorf("invalid transition table size: %d", len(t))
	}
	for a := range t {
		if len(t[a]) != ns {
			return nil, fmt.Errorf("invalid transition table row count for action %q: %d", actions[a], len(t[a]))
		}
		for s := range t[a] {
			if len(t[a][s]) != ns {
				return nil, fmt.Errorf("invalid transition row size for action %q, state %q: %d", actions[a], states[s], len(t[a][s]))
			}
			if sum := sum(t[a][s]); math.Abs(sum-1.0) > 1e-9 {
				return nil, fmt.Errorf("transition row for action %q, state %q sums to %v", actions[a], states[s], sum)
			}
		}
	}

	if len(o) != na {
		return nil, fmt.Errorf("invalid observation table size: %d", len(o))
	}
	for a := range o {
		if len(o[a]) != ns {
			return nil, fmt.Errorf("invalid observation table row count for action %q: %d", actions[a], len(o[a]))
		}
		for sn := range o[a] {
			if len(o[a][sn]) != no {
				return nil, fmt.Errorf("invalid observation row size for action %q, state %q: %d", actions[a], states[sn], len(o[a][sn]))
			}
			if sum := sum(o[a][sn]); math.Abs(sum-1.0) > 1e-9 {
				return nil, fmt.Errorf("observation row for action %q, state %q sums to %v", actions[a], states[sn], sum)
			}
		}
	}

	if reward != nil {
		if len(reward) != ns {
			return nil, fmt.Errorf("invalid reward table size: %d", len(reward))
		}
		for s := range reward {
			if len(reward[s]) != na {
				return nil, fmt.Errorf("invalid reward row size for state %q: %d", states[s], len(reward[s]))
			}
		}
	}

	return &POMDP{
		states:       states,
		actions:      actions,
		observations: observations,
		t:            t,
		o:            o,
		reward:       reward,
		discount:     discount,
	}, nil
}

// SpaceDims returns the sizes of the state, action and observation spaces.
func (p *POMDP) SpaceDims() (ns, na, no int) {
	return len(p.states), len(p.actions), len(p.observations)
}

// Transition returns the probability of transitioning from state s to state sn
// when taking action a.
func (p *POMDP) Transition(a, s, sn int) float64 {
	return p.t[a][s][sn]
}

// Observation returns the probability of observing o in state sn after taking
// action a.
func (p *POMDP) Observation(a, sn, o int) float64 {
	return p.o[a][sn][o]
}

// Reward returns the immediate reward for taking action a in state s.
// It returns 0 if the POMDP carries no reward table.
func (p *POMDP) Reward(s, a int) float64 {
	if p.reward == nil {
		return 0.0
	}
	return p.reward[s][a]
}

// Discount returns the reward discount factor.
func (p *POMDP) Discount() float64 {
	return p.discount
}

// States returns state space labels.
func (p *POMDP) States() []string {
	return append([]string(nil), p.states...)
}

// Actions returns action space labels.
func (p *POMDP) Actions() []string {
	return append([]string(nil), p.actions...)
}

// Observations returns observation space labels.
func (p *POMDP) Observations() []string {
	return append([]string(nil), p.observations...)
}

// StateIndex returns the index of the state with the given label.
// It returns error if no such state exists.
func (p *POMDP) StateIndex(name string) (int, error) {
	return index(p.states, name)
}

// ActionIndex returns the index of the action with the given label.
// It returns error if no such action exists.
func (p *POMDP) ActionIndex(name string) (int, error) {
	return index(p.actions, name)
}

// ObservationIndex returns the index of the observation with the given label.
// It returns error if no such observation exists.
func (p *POMDP) ObservationIndex(name string) (int, error) {
	return index(p.observations, name)
}

// SampleTransition draws the next state from the transition distribution of
// state s under action a using the random source src.
// It returns error if the draw fails.
func (p *POMDP) SampleTransition(src xrand.Source, s, a int) (int, error) {
	idx, err := rand.RouletteDrawNFrom(src, p.t[a][s], 1)
	if err != nil {
		return 0, fmt.Errorf("failed to sample state transition: %v", err)
	}

	return idx[0], nil
}

// SampleObservation draws an observation from the observation distribution of
// state sn under action a using the random source src.
// It returns error if the draw fails.
func (p *POMDP) SampleObservation(src xrand.Source, a, sn int) (int, error) {
	idx, err := rand.RouletteDrawNFrom(src, p.o[a][sn], 1)
	if err != nil {
		return 0, fmt.Errorf("failed to sample observation: %v", err)
	}

	return idx[0], nil
}

func sum(p []float64) float64 {
	var s float64
	for _, v := range p {
		s += v
	}
	return s
}

func index(space []string, name string) (int, error) {
	for i, s := range space {
		if s == name {
			return i, nil
		}
	}

	return 0, fmt.Errorf("unknown space element: %q", name)
}
