package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"time"

	"github.com/FoxHui1759/A-mobile-application-that-assists-individuals-with-visual-impairment-to-travel-in-Hong-Kong/internal/lib/fusion"
	"github.com/FoxHui1759/A-mobile-application-that-assists-individuals-with-visual-impairment-to-travel-in-Hong-Kong/internal/lib/geo"
	"github.com/FoxHui1759/A-mobile-application-that-assists-individuals-with-visual-impairment-to-travel-in-Hong-Kong/internal/lib/navigation"
	"github.com/FoxHui1759/A-mobile-application-that-assists-individuals-with-visual-impairment-to-travel-in-Hong-Kong/internal/lib/routing"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "walk":
		handleWalk()
	case "track":
		handleTrack()
	case "help":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Position fusion and navigation test tool")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  test-fusion walk  [--steps N] [--heading DEG] [--gps-every N] [--origin lat,lng]")
	fmt.Println("      Feed synthetic accelerometer peaks and compass readings into the fusion")
	fmt.Println("      engine and print the fused position after every detected step.")
	fmt.Println()
	fmt.Println("  test-fusion track [--length M] [--step-every M] [--origin lat,lng]")
	fmt.Println("      Walk a synthetic straight route through a navigation session and print")
	fmt.Println("      every notification (step changes, arrival).")
}

func parseOrigin(s string) geo.Point {
	origin, ok := geo.ParseCoordinates(s)
	if !ok {
		log.Fatalf("Invalid origin coordinates: %s", s)
	}
	return origin
}

// syntheticClock advances only when told to, so debounce windows are exact
type syntheticClock struct{ now time.Time }

func (c *syntheticClock) Now() time.Time { return c.now }

func handleWalk() {
	fs := flag.NewFlagSet("walk", flag.ExitOnError)
	steps := fs.Int("steps", 20, "Number of steps to simulate")
	heading := fs.Float64("heading", 90, "Walking heading in degrees (0 = north)")
	gpsEvery := fs.Int("gps-every", 0, "Deliver an accurate GPS fix every N steps (0 = only at start)")
	originStr := fs.String("origin", "22.2832728,114.1331896", "Starting fix (lat,lng)")
	_ = fs.Parse(os.Args[2:])

	origin := parseOrigin(*originStr)
	clock := &syntheticClock{now: time.Now()}
	engine := fusion.NewEngine(fusion.DefaultConfig(), fusion.WithClock(clock.Now))

	engine.HandleLocation(fusion.Position{
		Latitude: origin.Latitude, Longitude: origin.Longitude, AccuracyM: 5, Timestamp: clock.now,
	})

	rad := *heading * math.Pi / 180
	compass := fusion.Sample{X: 40 * math.Cos(rad), Y: 40 * math.Sin(rad)}
	for i := 0; i < 10; i++ {
		compass.Timestamp = clock.now
		engine.HandleMagnetometer(compass)
	}

	fmt.Printf("%-5s %-12s %-12s %-8s %-6s %-6s %s\n", "step", "lat", "lng", "source", "acc", "conf", "moved")
	for step := 1; step <= *steps; step++ {
		// Six samples at 100ms: rest, rest, peak, rest, rest, rest
		for _, z := range []float64{9.8, 9.9, 13.5, 9.7, 9.8, 9.8} {
			clock.now = clock.now.Add(100 * time.Millisecond)
			engine.HandleAccelerometer(fusion.Sample{Z: z, Timestamp: clock.now})
		}

		if *gpsEvery > 0 && step%*gpsEvery == 0 {
			truth := geo.Offset(origin,
				float64(step)*0.7*math.Cos(rad), float64(step)*0.7*math.Sin(rad))
			engine.HandleLocation(fusion.Position{
				Latitude: truth.Latitude, Longitude: truth.Longitude, AccuracyM: 6, Timestamp: clock.now,
			})
		}

		pos, ok := engine.FusedPosition()
		if !ok {
			fmt.Printf("%-5d no estimate\n", step)
			continue
		}
		moved := geo.GreatCircleDistance(origin, pos.Point())
		state := engine.PdrState()
		fmt.Printf("%-5d %-12.7f %-12.7f %-8s %-6.1f %-6.2f %.1f m\n",
			step, pos.Latitude, pos.Longitude, pos.Source, pos.AccuracyM, state.Confidence, moved)
	}

	fmt.Printf("\n%s\n", engine)
}

// straightProvider returns a single route heading north from the origin in three steps
type straightProvider struct{ length float64 }

func (p straightProvider) GetRoutes(ctx context.Context, origin, destination geo.Point, language string) ([]routing.RouteCandidate, error) {
	bounds := []float64{0, p.length / 3, 2 * p.length / 3, p.length}
	candidate := routing.RouteCandidate{Summary: "Synthetic route", TotalDistanceM: p.length, TotalDurationS: p.length / 1.2}
	points := []geo.Point{origin}
	for i := 0; i < 3; i++ {
		start, end := geo.Offset(origin, bounds[i], 0), geo.Offset(origin, bounds[i+1], 0)
		candidate.Steps = append(candidate.Steps, routing.RouteStep{
			Instruction: fmt.Sprintf("Walk north %.0f m", bounds[i+1]-bounds[i]),
			DistanceM:   bounds[i+1] - bounds[i],
			DurationS:   (bounds[i+1] - bounds[i]) / 1.2,
			Start:       start,
			End:         end,
		})
		points = append(points, end)
	}
	candidate.OverviewPolyline = geo.Polyline{EncodedPolyline: geo.EncodePolyline(points)}
	return []routing.RouteCandidate{candidate}, nil
}

func handleTrack() {
	fs := flag.NewFlagSet("track", flag.ExitOnError)
	length := fs.Float64("length", 300, "Route length in metres")
	stepEvery := fs.Float64("step-every", 10, "Metres walked between route checks")
	originStr := fs.String("origin", "22.2832728,114.1331896", "Route start (lat,lng)")
	_ = fs.Parse(os.Args[2:])

	origin := parseOrigin(*originStr)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	engine := fusion.NewEngine(fusion.DefaultConfig())
	fix := func(p geo.Point) {
		engine.HandleLocation(fusion.Position{Latitude: p.Latitude, Longitude: p.Longitude, AccuracyM: 5})
	}
	fix(origin)

	cfg := navigation.DefaultConfig()
	cfg.RouteCheckInterval = 0
	cfg.DistanceUpdateInterval = 0
	cfg.GracePeriod = 0
	cfg.AutoEndDelay = time.Hour
	session := navigation.NewSession(ctx, "track", cfg, navigation.Dependencies{
		Positions: engine,
		Routes:    straightProvider{length: *length},
	})
	defer session.Close()

	notes, unsubscribe := session.Notifications(32)
	defer unsubscribe()

	end := geo.Offset(origin, *length, 0)
	if err := session.StartNavigation(ctx, fmt.Sprintf("%.7f,%.7f", end.Latitude, end.Longitude)); err != nil {
		log.Fatalf("Failed to start navigation: %v", err)
	}

	for walked := 0.0; walked <= *length+*stepEvery; walked += *stepEvery {
		fix(geo.Offset(origin, walked, 0))
		if err := session.CheckRoute(ctx); err != nil {
			log.Fatalf("Route check failed: %v", err)
		}
		if err := session.UpdateDistance(ctx); err != nil {
			log.Fatalf("Distance update failed: %v", err)
		}

		state := session.State()
		fmt.Printf("walked %6.1f m  step %d  step %3.0f%%  route %3.0f%%  next in %5.1f m  phase %s\n",
			walked, state.CurrentStepIndex+1, state.StepProgress*100, state.RouteProgress*100,
			state.DistanceToNextStepM, state.Phase)

		for drained := false; !drained; {
			select {
			case n := <-notes:
				fmt.Printf("  >> %s %s %s\n", n.Kind, n.Instruction, n.Message)
			default:
				drained = true
			}
		}
		if state.Phase == navigation.PhaseArrived {
			break
		}
	}
}
