package config

import (
	"fmt"
	"os"
	"strings"

	"carrental/internal/models"

	yamlv2 "gopkg.in/yaml.v2"
)

// DefaultFleetPath is used when CARS_PATH is not set.
const DefaultFleetPath = "configs/cars.yaml"

type fleetFile struct {
	Cars []models.Car `yaml:"cars"`
}

// FleetPath resolves the fleet file location from CARS_PATH.
func FleetPath() string {
	if p := strings.TrimSpace(os.Getenv("CARS_PATH")); p != "" {
		return p
	}
	return DefaultFleetPath
}

// LoadFleet reads the car catalogue. Cars without an id are rejected.
func LoadFleet(path string) ([]*models.Car, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fleet: %w", err)
	}

	var f fleetFile
	if err := yamlv2.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fleet: %w", err)
	}

	seen := make(map[string]struct{}, len(f.Cars))
	cars := make([]*models.Car, 0, len(f.Cars))
	for i := range f.Cars {
		c := &f.Cars[i]
		c.ID = strings.TrimSpace(c.ID)
		if c.ID == "" {
			return nil, fmt.Errorf("fleet entry %d has no id", i)
		}
		if _, dup := seen[c.ID]; dup {
			return nil, fmt.Errorf("duplicate car id %s", c.ID)
		}
		seen[c.ID] = struct{}{}
		cars = append(cars, c)
	}
	return cars, nil
}
