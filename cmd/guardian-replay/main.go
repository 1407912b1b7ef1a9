// Command guardian-replay runs a recorded GPS track (timestamp,lat,lon CSV)
// through the immobility and fall detectors and prints what they raise.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/mr1hm/go-guardian/internal/config"
	"github.com/mr1hm/go-guardian/internal/ingestion"
	"github.com/mr1hm/go-guardian/internal/logging"
	"github.com/mr1hm/go-guardian/internal/monitor"
)

func main() {
	var trackPath = flag.String("track", "", "Path to a timestamp,lat,lon CSV track (required)")
	var asJSON = flag.Bool("json", false, "Print the result as JSON")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	// stdout carries the replay result
	logging.SetupTo(os.Stderr, cfg.Logging.Level, "text")

	if *trackPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	track, err := ingestion.LoadTrack(*trackPath)
	if err != nil {
		logging.Fatalf("Failed to load track: %v", err)
	}

	res := monitor.ReplayTrack(track, cfg.ImmobilityConfig(), cfg.FallConfig())

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			logging.Fatalf("Failed to encode result: %v", err)
		}
		return
	}

	for _, e := range res.Events {
		line := fmt.Sprintf("%s  %-10s %s", e.At.Format("2006-01-02 15:04:05"), e.Kind, e.Position.MapsURL())
		switch {
		case e.Fall != nil:
			line += fmt.Sprintf("  %s/%s %.1f->%.1f km/h %.2f m/s²",
				e.Fall.FallType, e.Fall.Severity, e.Fall.PreviousSpeedKmh, e.Fall.CurrentSpeedKmh, e.Fall.AccelerationMs2)
		case e.PostFall != nil:
			line += fmt.Sprintf("  %.0fs since fall, moved %.1fm", e.PostFall.TimeSinceFallSeconds, e.PostFall.MovementSinceFallMeters)
		}
		fmt.Println(line)
	}
	fmt.Printf("%d samples, %d rejected, %d events\n", res.Samples, res.Rejected, len(res.Events))
}
