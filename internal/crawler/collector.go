package crawler

// ErrorCollector accumulates isolated per-item failures in arrival order.
// Entries are never removed. The zero value is ready to use.
type ErrorCollector struct {
	entries []ErrorEntry
}

// Add appends an entry.
func (c *ErrorCollector) Add(entry ErrorEntry) {
	if entry.Phase == "" {
		entry.Phase = PhaseOther
	}
	c.entries = append(c.entries, entry)
}

// AddError records err for noteID under phase.
func (c *ErrorCollector) AddError(phase Phase, noteID string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.Add(ErrorEntry{Message: msg, NoteID: noteID, Phase: phase})
}

// Entries returns a copy of the collected entries.
func (c *ErrorCollector) Entries() []ErrorEntry {
	out := make([]ErrorEntry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Len returns the number of entries.
func (c *ErrorCollector) Len() int { return len(c.entries) }

// Empty reports whether nothing was collected.
func (c *ErrorCollector) Empty() bool { return len(c.entries) == 0 }

// Messages renders every entry for the lifecycle event errors list.
func (c *ErrorCollector) Messages() []string {
	if len(c.entries) == 0 {
		return nil
	}
	out := make([]string, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e.String())
	}
	return out
}
