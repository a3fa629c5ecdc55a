package config

import (
	"flag"
	"os"

	"github.com/dmitrijs2005/drivestore/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-d string   PostgreSQL DSN
//	-u string   public base URL for generated file links
//	-b string   storage backend kind (chunked|s3|swift)
//	-p string   object key prefix
//	-l int      local owner capacity, MB
//	-m int      remote owner capacity, MB
//	-r string   Redis address for the event bus
//
// Backend credentials and tool paths have no flag form; set them through
// the JSON configuration file.
//
// Notes:
//   - The function first filters os.Args to only the flags it recognizes
//     using flagx.FilterArgs, avoiding collisions with other components.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-u", "-b", "-p", "-l", "-m", "-r"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.PublicBaseURL, "u", config.PublicBaseURL, "public base URL")
	fs.StringVar(&config.StorageBackend, "b", config.StorageBackend, "storage backend kind (chunked|s3|swift)")
	fs.StringVar(&config.KeyPrefix, "p", config.KeyPrefix, "object key prefix")
	fs.Int64Var(&config.LocalCapacityMB, "l", config.LocalCapacityMB, "local owner capacity (MB)")
	fs.Int64Var(&config.RemoteCapacityMB, "m", config.RemoteCapacityMB, "remote owner capacity (MB)")
	fs.StringVar(&config.RedisAddr, "r", config.RedisAddr, "redis address for the event bus")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
