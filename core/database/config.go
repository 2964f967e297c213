package database

import (
	coreconfig "postledger/core/config"
)

// Config holds connection settings for the Postgres ledger backend. It is
// declared in core/config so this package stays below it in the import graph.
type Config = coreconfig.DatabaseConfig
