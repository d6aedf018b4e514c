package store

import "github.com/cuemby/tally/pkg/tallyerr"

func errConfig(message string) error {
	return tallyerr.NewConfigError("store: " + message)
}
