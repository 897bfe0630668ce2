package database

import (
	"context"
	"fmt"
	"sort"
	"time"

	"carrental/internal/models"
)

const carColumns = `id, name, model, plate_number, price_per_day, sort_order, is_active, created_at, updated_at`

// SetCars replaces the in-memory fleet cache.
func (db *DB) SetCars(cars []*models.Car) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.carsCache = make(map[string]*models.Car, len(cars))
	for _, c := range cars {
		db.carsCache[c.ID] = c
	}
}

func (db *DB) UpsertCar(ctx context.Context, car *models.Car) error {
	query := `INSERT INTO cars (` + carColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
              ON CONFLICT(id) DO UPDATE SET
                name = excluded.name,
                model = excluded.model,
                plate_number = excluded.plate_number,
                price_per_day = excluded.price_per_day,
                sort_order = excluded.sort_order,
                is_active = excluded.is_active,
                updated_at = excluded.updated_at`
	now := time.Now()
	createdAt := car.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	_, err := db.ExecContext(ctx, query,
		car.ID, car.Name, car.Model, car.PlateNumber, car.PricePerDay.String(),
		car.SortOrder, car.IsActive, formatTime(createdAt), formatTime(now),
	)
	if err != nil {
		return classify("upsert car", err)
	}
	car.CreatedAt = createdAt
	car.UpdatedAt = now

	db.mu.Lock()
	db.carsCache[car.ID] = car
	db.mu.Unlock()
	return nil
}

// SyncCars upserts the fleet inside one transaction and refreshes the cache.
func (db *DB) SyncCars(ctx context.Context, cars []*models.Car) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return classify("sync cars", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `INSERT INTO cars (` + carColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
              ON CONFLICT(id) DO UPDATE SET
                name = excluded.name,
                model = excluded.model,
                plate_number = excluded.plate_number,
                price_per_day = excluded.price_per_day,
                sort_order = excluded.sort_order,
                is_active = excluded.is_active,
                updated_at = excluded.updated_at`
	now := formatTime(time.Now())
	for _, c := range cars {
		if _, err := tx.ExecContext(ctx, query,
			c.ID, c.Name, c.Model, c.PlateNumber, c.PricePerDay.String(),
			c.SortOrder, c.IsActive, now, now,
		); err != nil {
			return classify("sync car "+c.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return classify("sync cars", err)
	}

	db.SetCars(cars)
	return nil
}

func (db *DB) GetCar(ctx context.Context, id string) (*models.Car, error) {
	db.mu.RLock()
	cached, ok := db.carsCache[id]
	db.mu.RUnlock()
	if ok {
		c := *cached
		return &c, nil
	}

	query := `SELECT ` + carColumns + ` FROM cars WHERE id = ?`
	car, err := scanCar(db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, classify("get car "+id, err)
	}
	return car, nil
}

func (db *DB) GetActiveCars(ctx context.Context) ([]*models.Car, error) {
	query := `SELECT ` + carColumns + ` FROM cars WHERE is_active = 1 ORDER BY sort_order, id`
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, classify("get active cars", err)
	}
	defer rows.Close()

	var cars []*models.Car
	for rows.Next() {
		car, err := scanCar(rows)
		if err != nil {
			return nil, classify("get active cars", fmt.Errorf("scan car: %w", err))
		}
		cars = append(cars, car)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("get active cars", err)
	}
	return cars, nil
}

// CachedCars returns the cached fleet ordered for display.
func (db *DB) CachedCars() []*models.Car {
	db.mu.RLock()
	cars := make([]*models.Car, 0, len(db.carsCache))
	for _, c := range db.carsCache {
		cars = append(cars, c)
	}
	db.mu.RUnlock()

	sort.Slice(cars, func(i, j int) bool {
		if cars[i].SortOrder != cars[j].SortOrder {
			return cars[i].SortOrder < cars[j].SortOrder
		}
		return cars[i].ID < cars[j].ID
	})
	return cars
}

func scanCar(row rowScanner) (*models.Car, error) {
	var (
		c                    models.Car
		model, plate         *string
		createdAt, updatedAt string
	)
	if err := row.Scan(&c.ID, &c.Name, &model, &plate, &c.PricePerDay, &c.SortOrder, &c.IsActive, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if model != nil {
		c.Model = *model
	}
	if plate != nil {
		c.PlateNumber = *plate
	}
	var err error
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if c.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}
