package query

// Budget bounds one prompt family: how many items feed it, how many
// tokens the rendered prompt may use, and how long the response may be.
type Budget struct {
	MaxItems int `json:"max_items,omitempty" yaml:"max_items,omitempty"`
	Prompt   int `json:"prompt" yaml:"prompt"`
	Response int `json:"response" yaml:"response"`
}

// Budgets carries the per-mode budgets of a query. Zero-valued fields
// fall back to the defaults, so callers override only what they need.
type Budgets struct {
	QFSMap    Budget `json:"qfs_map" yaml:"qfs_map"`
	QFSReduce Budget `json:"qfs_reduce" yaml:"qfs_reduce"`
	Paths     Budget `json:"paths" yaml:"paths"`
	Vector    Budget `json:"vector" yaml:"vector"`
}

// DefaultBudgets returns the stock budgets, sized for small-context
// chat models.
func DefaultBudgets() Budgets {
	return Budgets{
		QFSMap:    Budget{MaxItems: 24, Prompt: 900, Response: 384},
		QFSReduce: Budget{MaxItems: 12, Prompt: 1200, Response: 384},
		Paths:     Budget{Prompt: 1400, Response: 384},
		Vector:    Budget{Prompt: 1200, Response: 384},
	}
}

// withDefaults fills every unset field from the defaults.
func (b Budgets) withDefaults() Budgets {
	d := DefaultBudgets()
	b.QFSMap = b.QFSMap.or(d.QFSMap)
	b.QFSReduce = b.QFSReduce.or(d.QFSReduce)
	b.Paths = b.Paths.or(d.Paths)
	b.Vector = b.Vector.or(d.Vector)
	return b
}

func (b Budget) or(d Budget) Budget {
	if b.MaxItems <= 0 {
		b.MaxItems = d.MaxItems
	}
	if b.Prompt <= 0 {
		b.Prompt = d.Prompt
	}
	if b.Response <= 0 {
		b.Response = d.Response
	}
	return b
}
