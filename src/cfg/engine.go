package cfg

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type EngineConfig struct {
	Environment Environment `mapstructure:"ENVIRONMENT"`

	DataDir      string `mapstructure:"DATA_DIR"`
	PoolSize     uint64 `mapstructure:"POOL_SIZE"`
	NumInstances uint32 `mapstructure:"NUM_INSTANCES"`

	DeadlockIntervalMS int `mapstructure:"DEADLOCK_INTERVAL_MS"`
}

func (c EngineConfig) DeadlockInterval() time.Duration {
	return time.Duration(c.DeadlockIntervalMS) * time.Millisecond
}

func LoadConfig(path string) (EngineConfig, error) {
	viper.AddConfigPath(path)
	viper.SetConfigType("env")
	viper.SetConfigName(".env")
	viper.SetEnvPrefix("RELSTORE")
	viper.AutomaticEnv()

	viper.SetOptions(viper.ExperimentalBindStruct())

	viper.SetDefault("ENVIRONMENT", DefaultEnv)
	viper.SetDefault("DATA_DIR", "data")
	viper.SetDefault("POOL_SIZE", 64)
	viper.SetDefault("NUM_INSTANCES", 4)
	viper.SetDefault("DEADLOCK_INTERVAL_MS", 50)

	err := viper.ReadInConfig()
	if err != nil {
		fmt.Println("config file not found, using env vars")
	}

	var cfg EngineConfig

	err = viper.Unmarshal(&cfg)
	if err != nil {
		return EngineConfig{}, fmt.Errorf("viper unmarshaling config: %w", err)
	}

	err = cfg.Validate()
	if err != nil {
		return EngineConfig{}, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func (c EngineConfig) Validate() error {
	if err := c.Environment.Validate(); err != nil {
		return err
	}

	if c.PoolSize == 0 {
		return errors.New("pool size must be greater than zero")
	}

	if c.NumInstances == 0 {
		return errors.New("instance count must be greater than zero")
	}

	return nil
}

const (
	EnvDev  Environment = "dev"
	EnvProd Environment = "prod"

	DefaultEnv = EnvDev
)

type Environment string

func (e Environment) Validate() error {
	if e != EnvDev && e != EnvProd {
		return errors.New("environment must be either dev or prod")
	}

	return nil
}
