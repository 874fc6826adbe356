package model

// Crying baby POMDP space indices.
const (
	// states
	Hungry = iota
	Sated
)

const (
	// actions
	Feed = iota
	Ignore
)

const (
	// observations
	Crying = iota
	Quiet
)

// CryingBaby creates the crying baby POMDP: a 2-state problem in which a
// caregiver can't observe whether the baby is hungry, only whether it cries.
// Feeding always sates the baby; an ignored sated baby gets hungry with
// probability 0.1 and a hungry baby stays hungry. A hungry baby cries with
// probability 0.8, a sated one with probability 0.1.
func CryingBaby() *POMDP {
	states := []string{"hungry", "sated"}
	actions := []string{"feed", "ignore"}
	observations := []string{"crying", "quiet"}

	t := [][][]float64{
		// feed
		{
			{0.0, 1.0}, // hungry
			{0.0, 1.0}, // sated
		},
		// ignore
		{
			{1.0, 0.0}, // hungry
			{0.1, 0.9}, // sated
		},
	}

	// crying does not depend on the last action
	obsRows := [][]float64{
		{0.8, 0.2}, // hungry
		{0.1, 0.9}, // sated
	}
	o := [][][]float64{obsRows, obsRows}

	reward := [][]float64{
		{-15.0, -10.0}, // hungry: feeding costs -5 on top of the -10 hunger penalty
		{-5.0, 0.0},    // sated
	}

	p, err := NewPOMDP(states, actions, observations, t, o, reward, 0.9)
	if err != nil {
		// the tables above are static and valid
		panic(err)
	}

	return p
}
