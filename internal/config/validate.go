package config

import (
	"path/filepath"

	"github.com/cockroachdb/errors"

	"github.com/m3tro1d/pybackup/internal/models"
)

// Validate performs structural validation on a resolved plan.
func Validate(plan *models.BackupPlan) error {
	if plan == nil {
		return errors.New("plan is nil")
	}

	if !plan.Compression.Method.Valid() {
		return errors.Newf("invalid compression method %d", int(plan.Compression.Method))
	}

	for i, target := range plan.Targets {
		if target.Name == "" {
			return errors.Newf("target %d has no destination", i)
		}
		if !target.Compression.Method.Valid() {
			return errors.Newf("target %s: invalid compression method %d", target.Name, int(target.Compression.Method))
		}
	}

	return nil
}

// DuplicateDestinations returns destinations used by more than one target,
// in order of their first repetition.
func DuplicateDestinations(plan *models.BackupPlan) []string {
	if plan == nil {
		return nil
	}

	seen := make(map[string]int, len(plan.Targets))
	var dups []string
	for _, target := range plan.Targets {
		key := DestinationKey(target.Name)
		seen[key]++
		if seen[key] == 2 {
			dups = append(dups, target.Name)
		}
	}
	return dups
}

// DestinationKey normalizes a destination so equal paths compare equal.
func DestinationKey(name string) string {
	if abs, err := filepath.Abs(name); err == nil {
		return abs
	}
	return filepath.Clean(name)
}
