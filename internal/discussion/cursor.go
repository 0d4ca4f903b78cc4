package discussion

// StepRef is one named state of the dialogue state machine: a step plus the
// phase it lives in. The machine's states are (phase × stepKey) plus the
// terminal completed state; transitions walk the flattened step sequence.
type StepRef struct {
	PhaseID string
	Step    DialogueStep
}

// Cursor is the explicit finite-state machine over a template's steps. It
// replaces recomputing "current position" by scanning message history.
type Cursor struct {
	refs  []StepRef
	index map[string]int
}

func NewCursor(t *TemplateDoc) *Cursor {
	c := &Cursor{index: make(map[string]int)}
	for _, phase := range t.Phases {
		for _, step := range phase.Steps {
			if _, dup := c.index[step.Key]; dup {
				continue
			}
			c.index[step.Key] = len(c.refs)
			c.refs = append(c.refs, StepRef{PhaseID: phase.ID, Step: step})
		}
	}
	return c
}

func (c *Cursor) Len() int {
	return len(c.refs)
}

func (c *Cursor) First() (StepRef, bool) {
	if len(c.refs) == 0 {
		return StepRef{}, false
	}
	return c.refs[0], true
}

// Find returns the step with the given key. An unknown or empty key resolves
// to the first step, matching the "no gradable prompt yet" default.
func (c *Cursor) Find(key string) (StepRef, bool) {
	if i, ok := c.index[key]; ok {
		return c.refs[i], true
	}
	return c.First()
}

// NextAfter returns the step following the given key, which may cross into a
// new phase. ok=false means the sequence is exhausted: the terminal
// transition. An unknown key resolves to the first step.
func (c *Cursor) NextAfter(key string) (StepRef, bool) {
	i, ok := c.index[key]
	if !ok {
		return c.First()
	}
	if i+1 >= len(c.refs) {
		return StepRef{}, false
	}
	return c.refs[i+1], true
}
