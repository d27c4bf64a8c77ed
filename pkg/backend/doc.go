// Package backend provides dashboard.Backend implementations: a REST client
// for the metrics API and an in-memory store seeded from YAML.
package backend
