package api

import (
	"github.com/lysyi3m/sec-comb/app/history"
)

type StateLoader interface {
	Load() (history.State, error)
	FeedPath() string
}

var _ StateLoader = (*history.Store)(nil)

type Handler struct {
	store   StateLoader
	version string
}
