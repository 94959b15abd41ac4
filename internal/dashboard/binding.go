package dashboard

import (
	"context"
	"strings"
)

// OutputID names a rendered property, "component.property".
type OutputID string

// Output builds an OutputID from a component id and property.
func Output(component, property string) OutputID {
	return OutputID(component + "." + property)
}

// Component returns the component part of the id.
func (o OutputID) Component() string {
	s := string(o)
	if i := strings.LastIndexByte(s, '.'); i >= 0 {
		return s[:i]
	}
	return s
}

// Property returns the property part of the id.
func (o OutputID) Property() string {
	s := string(o)
	if i := strings.LastIndexByte(s, '.'); i >= 0 {
		return s[i+1:]
	}
	return ""
}

// ComputeFunc derives output values from the binding's input values. It
// returns one value per declared output, in declaration order, and must not
// mutate shared state.
type ComputeFunc func(ctx context.Context, in Values) ([]any, error)

// Binding maps a set of input controls to a set of outputs.
type Binding struct {
	Name    string
	Inputs  []ControlID
	Outputs []OutputID
	Compute ComputeFunc
}

// BindingInfo is the wire description of a binding.
type BindingInfo struct {
	Name    string      `json:"name"`
	Inputs  []ControlID `json:"inputs"`
	Outputs []OutputID  `json:"outputs"`
}
