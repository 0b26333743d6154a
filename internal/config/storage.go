package config

import (
	"github.com/andrew-solarstorm/go-packages/common"
)

type StorageConfig struct {
	// DBPath is the path to the BoltDB file for pool snapshots and pending transactions.
	// Default: "./data/swap-engine.db"
	DBPath string

	// PersistenceEnabled controls whether anything is written to disk.
	// Default: true
	PersistenceEnabled bool

	// PersistInterval is how often the pool snapshot is saved to disk (in seconds).
	// Default: 30
	PersistInterval int
}

func (c *StorageConfig) Key() string {
	return STORAGE_CONFIG_KEY
}

func (c *StorageConfig) Load() error {
	c.DBPath = common.GetEnvOrDefault("DB_PATH", "./data/swap-engine.db")
	c.PersistenceEnabled = common.GetEnvOrDefault("PERSISTENCE_ENABLED", "true") == "true"
	c.PersistInterval = common.GetEnvOrDefaultInt("PERSIST_INTERVAL", 30)
	return nil
}

func (c *StorageConfig) Validate() error {
	return nil
}
