package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/authkeeper/internal/flagx"
	"github.com/dmitrijs2005/authkeeper/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. It relies on
// timex.Duration so JSON can specify the timeout either as a string like
// "15s" or as integer nanoseconds. Pointer fields distinguish "absent" from
// zero values so JSON only overrides what it sets.
type JsonConfig struct {
	BaseURL            *string         `json:"base_url"`
	StoreBackend       *string         `json:"store_backend"`
	StorePath          *string         `json:"store_path"`
	RedisAddr          *string         `json:"redis_addr"`
	RequestTimeout     *timex.Duration `json:"request_timeout"`
	VerifyTokenOnStart *bool           `json:"verify_token_on_start"`
	LogBackend         *string         `json:"log_backend"`
}

// parseJson overlays cfg with values loaded from the JSON file given via the
// -c or -config flags. Without the flag nothing is loaded. Read and
// unmarshal errors panic; intended usage is defaults -> parseJson ->
// parseFlags, where later stages override earlier ones.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.BaseURL != nil {
		cfg.BaseURL = *jc.BaseURL
	}
	if jc.StoreBackend != nil {
		cfg.StoreBackend = *jc.StoreBackend
	}
	if jc.StorePath != nil {
		cfg.StorePath = *jc.StorePath
	}
	if jc.RedisAddr != nil {
		cfg.RedisAddr = *jc.RedisAddr
	}
	if jc.RequestTimeout != nil {
		cfg.RequestTimeout = jc.RequestTimeout.Duration
	}
	if jc.VerifyTokenOnStart != nil {
		cfg.VerifyTokenOnStart = *jc.VerifyTokenOnStart
	}
	if jc.LogBackend != nil {
		cfg.LogBackend = *jc.LogBackend
	}
}
