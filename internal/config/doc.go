// Package config loads, validates and persists dredge settings.
//
// Values are layered: built-in defaults, then the YAML file, then
// environment variables, then command-line flags. The environment keys for
// the aria2 endpoint and crawl tuning (ARIA2_RPC_*, DOWNLOAD_FETCH_*) match
// the names the web front end stores its settings under.
package config
