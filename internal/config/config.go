package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultBaseURL      = "https://api.langflow.astra.datastax.com"
	DefaultFlowID       = "d6dc026b-b629-441d-bf94-8ddafc1ac6c1"
	DefaultCollectionID = "6280155c-72f5-4a5e-a1de-1199cea3c176"
)

type Config struct {
	BaseURL          string
	ApplicationToken string // not checked here; a missing token shows up as a 401 from Langflow
	FlowID           string
	CollectionID     string
	Mock             bool // serve a local mock flow instead of BaseURL
	Port             string
	StreamTimeout    time.Duration
}

// Load reads .env (if present), the environment and any bound flags.
// Flag names use dashes: --base-url binds LANGFLOW_BASE_URL, etc.
func Load(flags *pflag.FlagSet) (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetDefault("langflow_base_url", DefaultBaseURL)
	v.SetDefault("langflow_flow_id", DefaultFlowID)
	v.SetDefault("langflow_collection_id", DefaultCollectionID)
	v.SetDefault("langflow_mock", false)
	v.SetDefault("port", "3000")
	v.SetDefault("stream_timeout", "5m")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	if flags != nil {
		binds := map[string]string{
			"langflow_base_url":      "base-url",
			"langflow_flow_id":       "flow-id",
			"langflow_collection_id": "collection-id",
			"langflow_mock":          "mock",
			"port":                   "port",
			"stream_timeout":         "stream-timeout",
		}
		for key, flag := range binds {
			if f := flags.Lookup(flag); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, err
				}
			}
		}
	}

	timeout, err := time.ParseDuration(v.GetString("stream_timeout"))
	if err != nil {
		return Config{}, fmt.Errorf("STREAM_TIMEOUT: %w", err)
	}

	return Config{
		BaseURL:          v.GetString("langflow_base_url"),
		ApplicationToken: v.GetString("langflow_application_token"),
		FlowID:           v.GetString("langflow_flow_id"),
		CollectionID:     v.GetString("langflow_collection_id"),
		Mock:             v.GetBool("langflow_mock"),
		Port:             v.GetString("port"),
		StreamTimeout:    timeout,
	}, nil
}

// RegisterFlags adds the flags Load knows how to bind.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("base-url", DefaultBaseURL, "Langflow API base URL")
	fs.String("flow-id", DefaultFlowID, "flow to run")
	fs.String("collection-id", DefaultCollectionID, "Langflow collection the flow belongs to")
	fs.Bool("mock", false, "run against a local mock flow server")
	fs.String("stream-timeout", "5m", "maximum lifetime of a flow stream")
}
