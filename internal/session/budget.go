package session

// Remaining returns how many more steps the budget allows.
func (s *Session) Remaining() int {
	if n := s.MaxSteps - len(s.Steps); n > 0 {
		return n
	}
	return 0
}

// BudgetSpent reports whether the step budget is used up.
func (s *Session) BudgetSpent() bool {
	return s.MaxSteps > 0 && len(s.Steps) >= s.MaxSteps
}
