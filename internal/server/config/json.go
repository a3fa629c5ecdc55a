package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/drivestore/internal/flagx"
	"github.com/dmitrijs2005/drivestore/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON
// unmarshalling. It uses timex.Duration for interval fields, which allows
// parsing both string values such as "1m" and integer nanoseconds.
//
// This struct is an intermediate DTO used only for reading JSON
// configuration files; after unmarshalling, its fields are copied into the
// runtime Config struct. Empty values leave the existing Config value
// untouched so that the JSON file can override settings selectively.
type JsonConfig struct {
	EndpointAddrHTTP string `json:"endpoint_addr_http"`
	DatabaseDSN      string `json:"database_dsn"`
	PublicBaseURL    string `json:"public_base_url"`

	StorageBackend string `json:"storage_backend"`
	KeyPrefix      string `json:"key_prefix"`

	LocalCapacityMB  *int64 `json:"local_capacity_mb"`
	RemoteCapacityMB *int64 `json:"remote_capacity_mb"`

	S3AccessKey    string `json:"s3_access_key"`
	S3SecretKey    string `json:"s3_secret_key"`
	S3Bucket       string `json:"s3_bucket"`
	S3Region       string `json:"s3_region"`
	S3BaseEndpoint string `json:"s3_base_endpoint"`
	S3BaseURL      string `json:"s3_base_url"`
	S3UsePathStyle *bool  `json:"s3_use_path_style"`

	SwiftUserName  string `json:"swift_user_name"`
	SwiftAPIKey    string `json:"swift_api_key"`
	SwiftAuthURL   string `json:"swift_auth_url"`
	SwiftTenant    string `json:"swift_tenant"`
	SwiftRegion    string `json:"swift_region"`
	SwiftContainer string `json:"swift_container"`
	SwiftBaseURL   string `json:"swift_base_url"`

	RedisAddr     string `json:"redis_addr"`
	RedisPassword string `json:"redis_password"`
	RedisDB       *int   `json:"redis_db"`

	FfmpegPath  string `json:"ffmpeg_path"`
	FfprobePath string `json:"ffprobe_path"`

	RemoteFetchTimeout timex.Duration `json:"remote_fetch_timeout"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance. The file path comes from the -c or -config command-line
// flags; when neither is set, no JSON file is loaded. An unreadable or
// invalid file panics: the server must not start on a half-applied config.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.PublicBaseURL, c.PublicBaseURL)
	setString(&config.StorageBackend, c.StorageBackend)
	setString(&config.KeyPrefix, c.KeyPrefix)

	if c.LocalCapacityMB != nil {
		config.LocalCapacityMB = *c.LocalCapacityMB
	}
	if c.RemoteCapacityMB != nil {
		config.RemoteCapacityMB = *c.RemoteCapacityMB
	}

	setString(&config.S3.AccessKey, c.S3AccessKey)
	setString(&config.S3.SecretKey, c.S3SecretKey)
	setString(&config.S3.Bucket, c.S3Bucket)
	setString(&config.S3.Region, c.S3Region)
	setString(&config.S3.BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.S3.BaseURL, c.S3BaseURL)
	if c.S3UsePathStyle != nil {
		config.S3.UsePathStyle = *c.S3UsePathStyle
	}

	setString(&config.Swift.UserName, c.SwiftUserName)
	setString(&config.Swift.APIKey, c.SwiftAPIKey)
	setString(&config.Swift.AuthURL, c.SwiftAuthURL)
	setString(&config.Swift.Tenant, c.SwiftTenant)
	setString(&config.Swift.Region, c.SwiftRegion)
	setString(&config.Swift.Container, c.SwiftContainer)
	setString(&config.Swift.BaseURL, c.SwiftBaseURL)

	setString(&config.RedisAddr, c.RedisAddr)
	setString(&config.RedisPassword, c.RedisPassword)
	if c.RedisDB != nil {
		config.RedisDB = *c.RedisDB
	}

	setString(&config.FfmpegPath, c.FfmpegPath)
	setString(&config.FfprobePath, c.FfprobePath)

	if c.RemoteFetchTimeout.Duration != 0 {
		config.RemoteFetchTimeout = time.Duration(c.RemoteFetchTimeout.Duration)
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
