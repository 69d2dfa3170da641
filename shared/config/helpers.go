package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// envOr parses the variable key with parse, returning def when it is unset,
// blank or malformed.
func envOr[T any](key string, def T, parse func(string) (T, error)) T {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := parse(raw)
	if err != nil {
		return def
	}
	return v
}

func getEnv(key, defaultValue string) string {
	return envOr(key, defaultValue, func(s string) (string, error) { return s, nil })
}

func getInt(key string, defaultValue int) int {
	return envOr(key, defaultValue, strconv.Atoi)
}

func getBool(key string, defaultValue bool) bool {
	return envOr(key, defaultValue, strconv.ParseBool)
}

func getFloat64(key string, defaultValue float64) float64 {
	return envOr(key, defaultValue, func(s string) (float64, error) { return strconv.ParseFloat(s, 64) })
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	return envOr(key, defaultValue, time.ParseDuration)
}

// IsLambda reports whether the process runs inside AWS Lambda.
func IsLambda() bool {
	for _, key := range []string{"AWS_LAMBDA_FUNCTION_NAME", "LAMBDA_TASK_ROOT", "AWS_EXECUTION_ENV"} {
		if os.Getenv(key) != "" {
			return true
		}
	}
	return false
}
