package statemachine

// Replay folds events through resolver starting at initial without running
// any action. It returns the final state and, in order, every action the
// live machine would have started. Because resolvers are pure, a live run
// that received the same events in the same order ends in the same state.
func Replay[S State, Env any](resolver Resolver[S, Env], initial S, events ...Event) (S, []Action[Env]) {
	state := initial
	var actions []Action[Env]
	for _, event := range events {
		if event == nil {
			continue
		}
		res := resolver.Resolve(state, event)
		state = res.NewState
		actions = append(actions, res.Actions...)
	}
	return state, actions
}
