package photomet

import "math"

// FlagNumberUndefined marks a MeasurementError that carries no specific
// flag bit. Any value distinct from every legal flag index would do.
const FlagNumberUndefined = math.MaxInt

// FailureFlagName is the canonical name of the general failure flag. Every
// algorithm's definition list starts with it.
const FailureFlagName = "flag"

// FlagDefinition pairs a flag name with its documentation. Number is the
// flag's slot in the owning algorithm's result.
type FlagDefinition struct {
	Name   string
	Doc    string
	Number int
}

// FlagDefinitionList is an ordered, value-typed list of flag definitions.
// Each algorithm owns its list as a package-level value; there is no global
// registry.
type FlagDefinitionList struct {
	defs []FlagDefinition
}

// NewFlagDefinitionList builds a list whose first entry is the canonical
// failure flag, followed by the given algorithm-specific definitions in
// insertion order.
func NewFlagDefinitionList(failureDoc string, defs ...FlagDefinition) FlagDefinitionList {
	l := FlagDefinitionList{}
	l.Add(FailureFlagName, failureDoc)
	for _, d := range defs {
		l.Add(d.Name, d.Doc)
	}
	return l
}

// Add appends a definition and returns it with its slot number assigned.
func (l *FlagDefinitionList) Add(name, doc string) FlagDefinition {
	d := FlagDefinition{Name: name, Doc: doc, Number: len(l.defs)}
	l.defs = append(l.defs, d)
	return d
}

func (l FlagDefinitionList) Size() int { return len(l.defs) }

func (l FlagDefinitionList) Get(i int) FlagDefinition { return l.defs[i] }

// Find returns the definition with the given name, if present.
func (l FlagDefinitionList) Find(name string) (FlagDefinition, bool) {
	for _, d := range l.defs {
		if d.Name == name {
			return d, true
		}
	}
	return FlagDefinition{}, false
}

// MeasurementError is raised by an algorithm when a failure should be
// recorded on the result as a specific flag. FlagBit is an index into the
// algorithm's definition list, or FlagNumberUndefined.
type MeasurementError struct {
	Msg     string
	FlagBit int
}

func (e *MeasurementError) Error() string { return e.Msg }

// NewMeasurementError wraps a failure message with the flag slot that
// should be set on the result.
func NewMeasurementError(msg string, flagBit int) *MeasurementError {
	return &MeasurementError{Msg: msg, FlagBit: flagBit}
}

// FlagHandler binds a definition list to the flag slots of a result. Slots
// beyond the result's length are accepted silently so that callers with
// older (shorter) results keep working.
type FlagHandler struct {
	defs          FlagDefinitionList
	failureNumber int
}

// NewFlagHandler locates the canonical failure slot in the definition list.
func NewFlagHandler(defs FlagDefinitionList) FlagHandler {
	h := FlagHandler{defs: defs, failureNumber: FlagNumberUndefined}
	if d, ok := defs.Find(FailureFlagName); ok {
		h.failureNumber = d.Number
	}
	return h
}

func (h FlagHandler) Definitions() FlagDefinitionList { return h.defs }

// FailureNumber returns the slot of the canonical failure flag, or
// FlagNumberUndefined if the list has none.
func (h FlagHandler) FailureNumber() int { return h.failureNumber }

func (h FlagHandler) setIfKnown(flags []bool, n int) {
	if n != FlagNumberUndefined && n >= 0 && n < len(flags) {
		flags[n] = true
	}
}

// HandleFailure sets the canonical failure slot and, when err is a
// MeasurementError carrying a specific bit, that slot too.
func (h FlagHandler) HandleFailure(flags []bool, err error) {
	h.setIfKnown(flags, h.failureNumber)
	if merr, ok := err.(*MeasurementError); ok {
		h.setIfKnown(flags, merr.FlagBit)
	}
}
