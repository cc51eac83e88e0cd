// Package config loads harvester settings.
//
// Values are layered: Default, then an optional YAML file, then HARVESTER_*
// environment variables. Command-line flags are applied by the caller on
// top of the result.
//
// Example config file:
//
//	generations: 9
//	output_dir: ./out
//	api:
//	  user_agent: my-harvester/1.0
//	  timeout: 30s
//	dataset:
//	  concurrency: 20
//	assets:
//	  concurrency: 10
//	  timeout: 10s
//	  max_retries: 3
//	  backoff: 2s
//	forms:
//	  resolution: slug
//	redis:
//	  url: redis://localhost:6379/0
package config
