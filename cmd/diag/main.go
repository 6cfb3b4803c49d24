package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/star/satpredict/internal/config"
	"github.com/star/satpredict/internal/passes"
	"github.com/star/satpredict/internal/propagation"
	"github.com/star/satpredict/internal/timebase"
)

func main() {
	logger := config.NewLogger("warn", "json", os.Stderr)

	cfg, err := config.Load(viper.New(), logger)
	if err != nil {
		fmt.Println("ERROR loading config:", err)
		os.Exit(1)
	}

	ctx := context.Background()
	es, err := cfg.Source.Load(ctx, logger)
	if err != nil {
		fmt.Println("ERROR loading element set:", err)
		os.Exit(1)
	}

	fmt.Printf("Satellite: %s (catalog %d, %s)\n", es.Name, es.CatalogNumber, es.IntlDesignator)
	fmt.Printf("  epoch %v (%s) element set %d rev %d\n",
		es.Epoch.Format(time.RFC3339), es.EpochJulian(), es.ElementNumber, es.RevolutionNumber)
	fmt.Printf("  i=%.4f° raan=%.4f° e=%.7f argp=%.4f° M=%.4f° n=%.8f rev/day\n",
		es.InclinationDeg, es.RAANDeg, es.Eccentricity, es.ArgPerigeeDeg, es.MeanAnomalyDeg, es.MeanMotion)
	fmt.Printf("  period %.2f min, perigee %.1f km, apogee %.1f km, deep space %v\n",
		es.PeriodMinutes(), es.PerigeeAltitudeKm(), es.ApogeeAltitudeKm(), es.DeepSpace())

	jdNow := timebase.Now()
	now := jdNow.Time()
	fmt.Printf("Observer: %s horizon %.1f°\n", cfg.Observer, cfg.Horizon)
	fmt.Printf("  geostationary=%v never rises=%v decay estimate=%s decayed=%v\n",
		propagation.Geostationary(es),
		propagation.NeverRises(es, cfg.Observer),
		propagation.DecayEstimate(es),
		propagation.Decayed(es, jdNow),
	)

	prop := propagation.NewSGP4(cfg.Propagation)
	fmt.Printf("Prediction start: %v\n", now)

	req := passes.Request{
		Propagator:   prop,
		ElementSet:   es,
		Observer:     cfg.Observer,
		Start:        now,
		Window:       72 * time.Hour,
		MinElevation: cfg.Horizon,
		MaxPasses:    cfg.PassCount,
	}

	found, err := passes.Predict(ctx, req)
	if err != nil {
		fmt.Println("ERROR predicting passes:", err)
		os.Exit(1)
	}
	for j, p := range found {
		marker := ""
		if p.InProgress {
			marker = " (in progress)"
		}
		fmt.Printf("  pass %d: orbit %d start=%v az=%.0f° maxEl=%.1f° at %v end=%v az=%.0f° dur=%.0fs%s\n",
			j, p.StartOrbit,
			p.StartTime.Format(time.RFC3339), p.StartAzimuth,
			p.MaxElevation, p.MaxElevationTime.Format("15:04:05"),
			p.EndTime.Format(time.RFC3339), p.EndAzimuth,
			p.DurationSeconds, marker)
	}
	fmt.Printf("\nTotal passes found: %d\n", len(found))
}
