/*
Package metrics provides Prometheus metrics for the HDFS client.

# Overview

Every native round trip made through a Connection or a File handle is
recorded by a Collector: call counts by outcome, call latency, the bytes
moved by reads and writes, errors by error code, and gauges for live
connections and open file handles.

	┌─────────────┐
	│  Collector  │  ← shared by any number of connections
	└──────┬──────┘
	       │
	   ┌───┴──────────────────────────┐
	   │                              │
	┌──▼───────────┐       ┌──────────▼────────┐
	│  Prometheus  │       │  Handler()        │
	│   Registry   │       │  /metrics         │
	│              │       │  /debug/operations│
	└──────────────┘       └───────────────────┘

# Usage

	collector, err := metrics.NewCollector(&metrics.Config{
		Enabled:   true,
		Namespace: "hdfs",
		Subsystem: "client",
	})
	if err != nil {
		log.Fatal(err)
	}

	conn, err := hdfs.Connect(hdfs.ConnectOptions{Host: "namenode", Metrics: collector})

	http.Handle("/", collector.Handler())

The collector keeps its own registry, so several collectors can coexist in
one process. A nil *Collector and a disabled one are both valid and record
nothing.

# Exported series

	<ns>_<sub>_native_calls_total{operation,status}
	<ns>_<sub>_native_call_duration_seconds{operation}
	<ns>_<sub>_transfer_size_bytes{operation}
	<ns>_<sub>_errors_total{operation,code}
	<ns>_<sub>_active_connections
	<ns>_<sub>_open_files
*/
package metrics
