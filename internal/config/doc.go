/*
Package config loads client settings from YAML files and HDFS_* environment
variables and turns them into the option structs the hdfs package accepts.

# Precedence

	┌─────────────────────────────────────────────┐
	│        Environment Variables                │ ← Highest Priority
	│            (HDFS_*)                         │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│         Configuration File                  │
	│            (YAML format)                    │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│           Default Values                    │ ← Lowest Priority
	└─────────────────────────────────────────────┘

Callers apply the layers themselves, in that order:

	cfg := config.NewDefault()
	if err := cfg.LoadFromFile("/etc/hdfs/client.yaml"); err != nil {
		log.Fatal(err)
	}
	if err := cfg.LoadFromEnv(); err != nil {
		log.Fatal(err)
	}
	conn, err := cfg.Connect(nil)

# Sections

	global:
	  log_level: INFO        # TRACE, DEBUG, INFO, WARN, ERROR
	  log_format: text       # text or json
	  log_file: ""           # stderr when empty
	connection:
	  local: false
	  host: 0.0.0.0
	  port: 8020
	  user: ""               # current OS user when empty
	io:
	  buffer_size: 64KB      # 0 or empty lets the cluster decide
	  replication: 0
	  block_size: 128MB
	metrics:
	  enabled: false
	  namespace: hdfs
	  subsystem: client
	  path: /metrics

# Environment

HDFS_LOCAL, HDFS_HOST, HDFS_PORT, HDFS_USER, HDFS_LOG_LEVEL, HDFS_LOG_FORMAT,
HDFS_LOG_FILE, HDFS_BUFFER_SIZE, HDFS_REPLICATION, HDFS_BLOCK_SIZE and
HDFS_METRICS_ENABLED override the matching keys. Booleans accept 1, true,
yes and on.
*/
package config
