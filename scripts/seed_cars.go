package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"carrental/internal/config"
	"carrental/internal/database"
	"carrental/internal/domain"

	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	var (
		carsPath = flag.String("cars", config.FleetPath(), "path to cars.yaml")
		dbPath   = flag.String("db", "./data/carrental.db", "path to sqlite db")
	)
	flag.Parse()

	cars, err := config.LoadFleet(*carsPath)
	if err != nil {
		return err
	}
	if len(cars) == 0 {
		return fmt.Errorf("no cars in %s", *carsPath)
	}

	db, err := database.NewDB(*dbPath, &logger)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	created, updated := 0, 0
	for _, car := range cars {
		_, err := db.GetCar(ctx, car.ID)
		switch {
		case err == nil:
			updated++
		case errors.Is(err, domain.ErrNotFound):
			created++
		default:
			return fmt.Errorf("get %s: %w", car.ID, err)
		}
		if err := db.UpsertCar(ctx, car); err != nil {
			return fmt.Errorf("upsert %s: %w", car.ID, err)
		}
	}

	logger.Info().Int("created", created).Int("updated", updated).Msg("done")
	return nil
}
