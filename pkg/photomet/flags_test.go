package photomet

import (
	"errors"
	"testing"
)

func TestFlagDefinitionListOrder(t *testing.T) {
	if ShapeFlagDefs.Size() != 6 {
		t.Fatalf("ShapeFlagDefs.Size() = %d, want 6", ShapeFlagDefs.Size())
	}
	if got := ShapeFlagDefs.Get(0).Name; got != FailureFlagName {
		t.Errorf("slot 0 = %q, want %q", got, FailureFlagName)
	}
	wantOrder := []FlagDefinition{
		ShapeFlagUnweightedBad, ShapeFlagUnweighted,
		ShapeFlagShift, ShapeFlagMaxIter, ShapeFlagPsfShapeBad,
	}
	for i, d := range wantOrder {
		if d.Number != i+1 {
			t.Errorf("%s slot = %d, want %d", d.Name, d.Number, i+1)
		}
	}

	if d, ok := ShapeFlagDefs.Find("flag_maxIter"); !ok || d.Number != ShapeFlagMaxIter.Number {
		t.Errorf("Find(flag_maxIter) = %+v, %v", d, ok)
	}
	if _, ok := ShapeFlagDefs.Find("no_such_flag"); ok {
		t.Error("Find matched a name that does not exist")
	}
}

func TestHandleFailureMeasurementError(t *testing.T) {
	h := NewFlagHandler(NaiveCentroidFlagDefs)
	if h.FailureNumber() != 0 {
		t.Errorf("FailureNumber = %d, want 0", h.FailureNumber())
	}
	if h.Definitions().Size() != NaiveCentroidFlagDefs.Size() {
		t.Error("handler does not expose its definition list")
	}
	flags := make([]bool, NaiveCentroidFlagDefs.Size())

	h.HandleFailure(flags, NewMeasurementError("off the edge", NaiveCentroidFlagEdge.Number))
	if !flags[0] {
		t.Error("canonical failure flag not set")
	}
	if !flags[NaiveCentroidFlagEdge.Number] {
		t.Error("specific flag bit not set")
	}
	if flags[NaiveCentroidFlagNoCounts.Number] {
		t.Error("unrelated flag bit set")
	}
}

func TestHandleFailureGenericError(t *testing.T) {
	h := NewFlagHandler(ShapeFlagDefs)
	flags := make([]bool, ShapeFlagDefs.Size())

	h.HandleFailure(flags, errors.New("anything"))
	if !flags[0] {
		t.Error("canonical failure flag not set for a generic error")
	}
	for i := 1; i < len(flags); i++ {
		if flags[i] {
			t.Errorf("flag slot %d set by a generic error", i)
		}
	}
}

func TestHandleFailureUndefinedBit(t *testing.T) {
	h := NewFlagHandler(GaussianFluxFlagDefs)
	flags := make([]bool, GaussianFluxFlagDefs.Size())
	h.HandleFailure(flags, NewMeasurementError("no specific bit", FlagNumberUndefined))
	if !flags[0] {
		t.Error("canonical failure flag not set")
	}
}

func TestHandleFailureShortSlice(t *testing.T) {
	h := NewFlagHandler(ShapeFlagDefs)
	flags := make([]bool, 1) // shorter than the definition list

	// Must not panic; the out-of-range slot is ignored.
	h.HandleFailure(flags, NewMeasurementError("x", ShapeFlagPsfShapeBad.Number))
	if !flags[0] {
		t.Error("canonical failure flag not set on short slice")
	}
}
