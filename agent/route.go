package agent

import (
	"fmt"
	"strings"
)

// Route is the closed set of behaviours the router may select.
type Route int

const (
	RouteBuildGraph Route = iota + 1
	RouteInvestigateGraph
	RouteDirectAnswer
)

var routeLabels = map[Route]string{
	RouteBuildGraph:       "build_graph",
	RouteInvestigateGraph: "investigate_graph",
	RouteDirectAnswer:     "direct_answer",
}

// Routes lists every route in declaration order.
func Routes() []Route {
	return []Route{RouteBuildGraph, RouteInvestigateGraph, RouteDirectAnswer}
}

func (r Route) String() string {
	if s, ok := routeLabels[r]; ok {
		return s
	}
	return fmt.Sprintf("route(%d)", int(r))
}

// ParseRoute maps a router label to a Route. Surrounding whitespace is
// ignored; any other deviation is an error wrapping ErrUnknownRoute.
func ParseRoute(label string) (Route, error) {
	label = strings.TrimSpace(label)
	for r, s := range routeLabels {
		if s == label {
			return r, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownRoute, label)
}

// state returns the state that handles r.
func (r Route) state() State {
	switch r {
	case RouteBuildGraph:
		return StateBuildGraph
	case RouteInvestigateGraph:
		return StateInvestigateGraph
	case RouteDirectAnswer:
		return StateDirectAnswer
	}
	return StateDone
}
