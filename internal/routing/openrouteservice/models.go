package openrouteservice

// orsRequest is the directions API request body.
type orsRequest struct {
	Coordinates  [][]float64 `json:"coordinates"`
	Instructions bool        `json:"instructions"`
	Geometry     bool        `json:"geometry"`
	Units        string      `json:"units"`
	Language     string      `json:"language"`
}

// orsResponse is the directions API response.
type orsResponse struct {
	Routes []orsRoute `json:"routes"`
}

type orsRoute struct {
	Summary  routeSummary   `json:"summary"`
	Segments []routeSegment `json:"segments,omitempty"`
	Geometry string         `json:"geometry"`
}

type routeSummary struct {
	Distance float64 `json:"distance"` // meters
	Duration float64 `json:"duration"` // seconds
}

type routeSegment struct {
	Steps []routeStep `json:"steps,omitempty"`
}

type routeStep struct {
	Distance    float64 `json:"distance"`
	Duration    float64 `json:"duration"`
	Type        int     `json:"type"`
	Instruction string  `json:"instruction"`
	Name        string  `json:"name"`
	WayPoints   []int   `json:"way_points,omitempty"`
}

type orsErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// orsErrorCodeRouteNotFound is returned with HTTP 404 or 400 when the points cannot be connected.
const orsErrorCodeRouteNotFound = 2009

// ORS instruction types.
const (
	stepLeft        = 0
	stepRight       = 1
	stepSharpLeft   = 2
	stepSharpRight  = 3
	stepSlightLeft  = 4
	stepSlightRight = 5
	stepStraight    = 6
	stepEnterRound  = 7
	stepExitRound   = 8
	stepUTurn       = 9
	stepGoal        = 10
	stepDepart      = 11
	stepKeepLeft    = 12
	stepKeepRight   = 13
)
