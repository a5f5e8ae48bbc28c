package app

import (
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type envVars struct {
	Environment string `split_words:"true"`
	DataDir     string `split_words:"true"`
}

// loadEnv reads process env (plus a .env file when present). Init
// applies every non-empty value on top of the loaded viper config.
func loadEnv() envVars {
	_ = godotenv.Load()

	var env envVars
	envconfig.MustProcess("RELSTORE", &env)

	return env
}
