package navigation

import (
	"context"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/FoxHui1759/A-mobile-application-that-assists-individuals-with-visual-impairment-to-travel-in-Hong-Kong/internal/lib/fusion"
	"github.com/FoxHui1759/A-mobile-application-that-assists-individuals-with-visual-impairment-to-travel-in-Hong-Kong/internal/lib/geo"
	"github.com/FoxHui1759/A-mobile-application-that-assists-individuals-with-visual-impairment-to-travel-in-Hong-Kong/internal/lib/routing"
)

// Phase is the navigation lifecycle state
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseLoading Phase = "loading"
	PhaseActive  Phase = "active"
	PhaseArrived Phase = "arrived"
)

var (
	ErrSessionClosed = status.Error(codes.FailedPrecondition, "navigation session is closed")
	ErrNotNavigating = status.Error(codes.FailedPrecondition, "no active navigation")
	ErrSuperseded    = status.Error(codes.Aborted, "navigation request was superseded")
)

// NavigationState is the observable "where am I / what's next" signal of a session
type NavigationState struct {
	Phase               Phase                   `json:"phase"`
	Destination         string                  `json:"destination,omitempty"`
	DestinationPoint    *geo.Point              `json:"destination_point,omitempty"`
	Route               *routing.RouteCandidate `json:"route,omitempty"`
	RouteIndex          int                     `json:"route_index"`
	CandidateCount      int                     `json:"candidate_count"`
	CurrentStepIndex    int                     `json:"current_step_index"`
	IsNavigating        bool                    `json:"is_navigating"`
	IsOffRoute          bool                    `json:"is_off_route"`
	IsLoading           bool                    `json:"is_loading"`
	RouteProgress       float64                 `json:"route_progress"`
	StepProgress        float64                 `json:"step_progress"`
	DistanceToNextStepM float64                 `json:"distance_to_next_step_m"`
	ETA                 *time.Time              `json:"eta,omitempty"`
	StartedAt           *time.Time              `json:"started_at,omitempty"`
	AutoEndAt           *time.Time              `json:"auto_end_at,omitempty"`
	Error               string                  `json:"error,omitempty"`
	Retryable           bool                    `json:"retryable,omitempty"`

	Err error `json:"-"`
}

// CurrentStep returns the step being walked, if any
func (s NavigationState) CurrentStep() (routing.RouteStep, bool) {
	if s.Route == nil || s.CurrentStepIndex < 0 || s.CurrentStepIndex >= len(s.Route.Steps) {
		return routing.RouteStep{}, false
	}
	return s.Route.Steps[s.CurrentStepIndex], true
}

// NotificationKind names a navigation event worth announcing to the user
type NotificationKind string

const (
	NotifyRouteReady  NotificationKind = "route_ready"
	NotifyStepChanged NotificationKind = "step_changed"
	NotifyOffRoute    NotificationKind = "off_route"
	NotifyBackOnRoute NotificationKind = "back_on_route"
	NotifyArrived     NotificationKind = "arrived"
	NotifyEnded       NotificationKind = "ended"
	NotifyError       NotificationKind = "error"
)

// Notification is a discrete navigation event. Kinds fire once per transition, never repeatedly.
type Notification struct {
	Kind        NotificationKind `json:"kind"`
	StepIndex   int              `json:"step_index"`
	Instruction string           `json:"instruction,omitempty"`
	DistanceM   float64          `json:"distance_m,omitempty"`
	Message     string           `json:"message,omitempty"`
	Timestamp   time.Time        `json:"timestamp"`
}

// PositionSource supplies the fused position; *fusion.Engine implements it
type PositionSource interface {
	FusedPosition() (fusion.Position, bool)
}

// Geocoder resolves free-text destinations to coordinates
type Geocoder interface {
	Resolve(ctx context.Context, query string) (geo.Point, error)
}

// CandidateStore keeps the evaluated candidate set for alternative-route switching
type CandidateStore interface {
	Put(key string, selection *routing.Selection) error

	// Returns the selection only while it is present and fresh
	Get(key string) (*routing.Selection, bool)

	Delete(key string)
}

// Config holds navigation thresholds and timers
type Config struct {
	WaypointThresholdM     float64       `yaml:"waypoint_threshold_m"`
	OffRouteThresholdM     float64       `yaml:"off_route_threshold_m"`
	RouteCheckInterval     time.Duration `yaml:"route_check_interval"`     // 0 disables the timer
	DistanceUpdateInterval time.Duration `yaml:"distance_update_interval"` // 0 disables the timer
	GracePeriod            time.Duration `yaml:"grace_period"`
	AutoEndDelay           time.Duration `yaml:"auto_end_delay"`
	AutoAdvance            bool          `yaml:"auto_advance"`
	FetchTimeout           time.Duration `yaml:"fetch_timeout"`
	Language               string        `yaml:"language"`
	FallbackOrigin         geo.Point     `yaml:"fallback_origin"`
}

// DefaultConfig returns the thresholds used for walking navigation in Hong Kong
func DefaultConfig() Config {
	return Config{
		WaypointThresholdM:     30,
		OffRouteThresholdM:     100,
		RouteCheckInterval:     2 * time.Second,
		DistanceUpdateInterval: time.Second,
		GracePeriod:            15 * time.Second,
		AutoEndDelay:           10 * time.Second,
		AutoAdvance:            true,
		FetchTimeout:           15 * time.Second,
		Language:               "zh-HK",
		FallbackOrigin:         geo.Point{Latitude: 22.2832728, Longitude: 114.1331896},
	}
}

// Dependencies are the collaborators a session drives
type Dependencies struct {
	Positions  PositionSource
	Routes     routing.Provider
	Evaluator  *routing.Evaluator // defaults to an evaluator without elevation
	Geocoder   Geocoder           // optional; coordinate destinations work without it
	Candidates CandidateStore     // optional; without it alternatives never need a refetch
	Matcher    routing.RouteMatcher
}
