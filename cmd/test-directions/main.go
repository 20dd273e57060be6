package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/FoxHui1759/A-mobile-application-that-assists-individuals-with-visual-impairment-to-travel-in-Hong-Kong/internal/clients/elevation"
	"github.com/FoxHui1759/A-mobile-application-that-assists-individuals-with-visual-impairment-to-travel-in-Hong-Kong/internal/clients/google"
	"github.com/FoxHui1759/A-mobile-application-that-assists-individuals-with-visual-impairment-to-travel-in-Hong-Kong/internal/config"
	"github.com/FoxHui1759/A-mobile-application-that-assists-individuals-with-visual-impairment-to-travel-in-Hong-Kong/internal/lib/export"
	"github.com/FoxHui1759/A-mobile-application-that-assists-individuals-with-visual-impairment-to-travel-in-Hong-Kong/internal/lib/geo"
	"github.com/FoxHui1759/A-mobile-application-that-assists-individuals-with-visual-impairment-to-travel-in-Hong-Kong/internal/lib/routing"
)

func main() {
	var (
		apiKey    = flag.String("api-key", "", "Google Maps API key (or set GOOGLE_MAP_API_KEY env var)")
		originStr = flag.String("origin", "22.2832728,114.1331896", "Origin coordinates (lat,lng)")
		destStr   = flag.String("dest", "香港大學站", "Destination: place name or lat,lng")
		language  = flag.String("language", "zh-HK", "Instruction language")
		slope     = flag.Bool("elevation", true, "Sample elevation and include slope in scoring")
		kmlOut    = flag.String("kml", "", "Write the selected route to this KML file")
		help      = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		fmt.Printf("Walking Directions Test Tool\n\n")
		fmt.Printf("Fetches walking routes, scores every candidate and shows the one a blind walker would get.\n\n")
		fmt.Printf("Usage: %s [options]\n\n", os.Args[0])
		fmt.Printf("Options:\n")
		flag.PrintDefaults()
		fmt.Printf("\nExamples:\n")
		fmt.Printf("  %s -dest=\"Central Pier 7\"\n", os.Args[0])
		fmt.Printf("  %s -origin=\"22.2819,114.1582\" -dest=\"22.2783,114.1747\" -language=en\n", os.Args[0])
		fmt.Printf("  GOOGLE_MAP_API_KEY=your_key %s -kml=route.kml\n", os.Args[0])
		return
	}

	_ = godotenv.Load()

	key := *apiKey
	if key == "" {
		key = os.Getenv(config.APIKeyEnv)
	}
	if key == "" {
		log.Fatalf("Google Maps API key required. Use -api-key flag or %s env var", config.APIKeyEnv)
	}

	origin, ok := geo.ParseCoordinates(*originStr)
	if !ok {
		log.Fatalf("Invalid origin coordinates: %s", *originStr)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client := google.NewClient(key)

	fmt.Printf("Walking Directions Test\n")
	fmt.Printf("=======================\n")
	fmt.Printf("Origin: %.6f, %.6f\n", origin.Latitude, origin.Longitude)
	fmt.Printf("Destination: %s\n", *destStr)
	fmt.Printf("API Key: %s...\n\n", key[:min(len(key), 10)])

	destination, err := client.Resolve(ctx, *destStr)
	if err != nil {
		log.Fatalf("Failed to resolve destination: %v", err)
	}
	fmt.Printf("Resolved destination: %.6f, %.6f\n\n", destination.Latitude, destination.Longitude)

	candidates, err := client.GetRoutes(ctx, origin, destination, *language)
	if err != nil {
		log.Fatalf("Failed to get routes: %v", err)
	}

	var elevationProvider routing.ElevationProvider
	if *slope {
		elevationProvider = elevation.NewClient(key)
	}
	evaluator := routing.NewEvaluator(routing.DefaultEvaluatorConfig(), elevationProvider)

	selection, err := evaluator.Evaluate(ctx, candidates)
	if err != nil {
		log.Fatalf("Failed to evaluate routes: %v", err)
	}

	for i, c := range selection.Candidates {
		marker := " "
		if i == selection.SelectedIndex {
			marker = "*"
		}
		score := selection.Scores[i]
		fmt.Printf("%s Route %d: %s\n", marker, i+1, c.Summary)
		fmt.Printf("    %.0f m, %.1f min, %d steps, %d turns\n",
			c.TotalDistanceM, c.TotalDurationS/60, score.StepCount, score.TurnCount)
		fmt.Printf("    slope: avg %.1f%%, max %.1f%%, ascent %.0f m (sampled=%t)\n",
			c.Slope.AvgSlopePct, c.Slope.MaxSlopePct, c.Slope.TotalAscentM, c.Slope.Sampled)
		fmt.Printf("    score: total %.2f = time %.2f + turn %.2f + step %.2f + slope %.2f\n",
			score.Total, score.Time, score.Turn, score.Step, score.Slope)
	}

	selected := selection.Selected()
	fmt.Printf("\nInstructions for route %d:\n", selection.SelectedIndex+1)
	for i, step := range selected.Steps {
		fmt.Printf("  %2d. %s (%.0f m)\n", i+1, step.Instruction, step.DistanceM)
	}

	if *kmlOut != "" {
		f, err := os.Create(*kmlOut)
		if err != nil {
			log.Fatalf("Failed to create %s: %v", *kmlOut, err)
		}
		defer f.Close()
		if err := export.WriteRouteKML(f, "Route to "+*destStr, selected, &origin); err != nil {
			log.Fatalf("Failed to write KML: %v", err)
		}
		fmt.Printf("\nWrote %s\n", *kmlOut)
	}
}
