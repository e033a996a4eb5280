package assertions

// Severity grades an outcome entry.
type Severity int

// Severities.
const (
	SeveritySuccess Severity = iota
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeveritySuccess:
		return "success"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	}
	return "unknown"
}

// Category names the check an entry comes from.
type Category string

// Categories.
const (
	CategoryResponse   Category = "response"
	CategoryStatus     Category = "status"
	CategoryValue      Category = "value"
	CategoryConstraint Category = "constraint"
	CategorySaveAs     Category = "save_as"
	CategoryExecution  Category = "execution"
)

// Entry is one finding of a step.
type Entry struct {
	Category Category
	Message  string
	Severity Severity
}

// Outcome collects the findings of one step.
type Outcome struct {
	Entries []Entry
}

// NewOutcome creates an empty Outcome.
func NewOutcome() *Outcome {
	return &Outcome{}
}

// Success records a passed check.
func (o *Outcome) Success(category Category, message string) {
	o.Entries = append(o.Entries, Entry{Category: category, Message: message, Severity: SeveritySuccess})
}

// Warning records a check that passed with a remark.
func (o *Outcome) Warning(category Category, message string) {
	o.Entries = append(o.Entries, Entry{Category: category, Message: message, Severity: SeverityWarning})
}

// Error records a failed check.
func (o *Outcome) Error(category Category, message string) {
	o.Entries = append(o.Entries, Entry{Category: category, Message: message, Severity: SeverityError})
}

// Record adds r as a success or an error.
func (o *Outcome) Record(category Category, r *Result) {
	if r.Passed {
		o.Success(category, r.Message)
	} else {
		o.Error(category, r.Message)
	}
}

func (o *Outcome) count(s Severity) int {
	n := 0
	for _, e := range o.Entries {
		if e.Severity == s {
			n++
		}
	}
	return n
}

// Successes returns the number of passed checks.
func (o *Outcome) Successes() int { return o.count(SeveritySuccess) }

// Warnings returns the number of warnings.
func (o *Outcome) Warnings() int { return o.count(SeverityWarning) }

// Errors returns the number of failed checks.
func (o *Outcome) Errors() int { return o.count(SeverityError) }

// Passed reports whether no check failed.
func (o *Outcome) Passed() bool {
	return o.Errors() == 0
}

// Messages returns the messages of entries with the given severity.
func (o *Outcome) Messages(s Severity) []string {
	var out []string
	for _, e := range o.Entries {
		if e.Severity == s {
			out = append(out, e.Message)
		}
	}
	return out
}
