package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *GathererConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.Feed.APIKey == "" {
		return errors.New("feed.api_key is required")
	}
	if c.Feed.MaxReconnects < 0 {
		return errors.New("feed.max_reconnects must be >= 0")
	}

	if err := c.Database.Timescale.validate("database.timescale"); err != nil {
		return err
	}

	if len(c.Slots) == 0 {
		return errors.New("at least one connection slot is required")
	}
	for i, slot := range c.Slots {
		if !slot.Enabled {
			continue
		}
		if slot.Name == "" {
			return fmt.Errorf("slots[%d].name is required for enabled slots", i)
		}
		if slot.Universes == "" && slot.Symbols == "" {
			return fmt.Errorf("slots[%d] (%s): universes or symbols is required", i, slot.Name)
		}
	}

	if c.Ingest.AnalysisWorkers < 1 {
		return errors.New("ingest.analysis_workers must be >= 1")
	}
	if c.Ingest.AnalysisQueueSize < 1 {
		return errors.New("ingest.analysis_queue_size must be >= 1")
	}

	if c.Health.Port < 1 || c.Health.Port > 65535 {
		return fmt.Errorf("health.port must be between 1 and 65535, got %d", c.Health.Port)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
