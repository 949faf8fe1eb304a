// Package destinations registers every built-in destination. Import it for
// its side effects:
//
//	import _ "github.com/ajitpratap0/depot/pkg/connector/destinations"
package destinations

import (
	// Import all destination connectors to trigger init() registration
	_ "github.com/ajitpratap0/depot/pkg/connector/destinations/bigquery"
	_ "github.com/ajitpratap0/depot/pkg/connector/destinations/redis"
)
