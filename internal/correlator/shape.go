package correlator

import (
	"time"

	"github.com/chriserin/ftrp/internal/reporting"
)

// Shape decides how features, scenarios and steps map onto report items.
type Shape interface {
	FeatureType() reporting.ItemType
	ScenarioType() reporting.ItemType
	// StepHasStats reports whether step and hook items count toward
	// launch statistics.
	StepHasStats() bool
	// Root opens the item that wraps every feature. It returns nil when
	// features sit directly under the launch.
	Root(client *reporting.Client, at time.Time) (*reporting.Handle, error)
}

// ShapeByName returns the shape for "step" or "scenario".
func ShapeByName(name string) (Shape, bool) {
	switch name {
	case "", "step":
		return StepShape{}, true
	case "scenario":
		return ScenarioShape{}, true
	}
	return nil, false
}

// StepShape reports feature > scenario > step, with every step counted.
type StepShape struct{}

func (StepShape) FeatureType() reporting.ItemType  { return reporting.ItemStory }
func (StepShape) ScenarioType() reporting.ItemType { return reporting.ItemScenario }
func (StepShape) StepHasStats() bool               { return true }

func (StepShape) Root(*reporting.Client, time.Time) (*reporting.Handle, error) {
	return nil, nil
}

// RootName is the synthetic suite ScenarioShape puts above all features.
const RootName = "Root User Story"

// ScenarioShape reports scenarios as the counted leaves. Features hang off a
// synthetic root suite and steps are nested without statistics.
type ScenarioShape struct{}

func (ScenarioShape) FeatureType() reporting.ItemType  { return reporting.ItemTest }
func (ScenarioShape) ScenarioType() reporting.ItemType { return reporting.ItemStep }
func (ScenarioShape) StepHasStats() bool               { return false }

func (ScenarioShape) Root(client *reporting.Client, at time.Time) (*reporting.Handle, error) {
	return client.StartItem(nil, reporting.StartItemRQ{
		Name:      RootName,
		Type:      reporting.ItemSuite,
		StartTime: at,
		HasStats:  true,
	})
}
