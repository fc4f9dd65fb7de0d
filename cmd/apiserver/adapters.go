package main

import (
	"github.com/turtacn/KeyIP-Explorer/internal/domain/patent"
)

// searchStore pairs the backend's query executor with the cached assignee
// directory in front of it, forming the patent.Store the application
// services consume.
type searchStore struct {
	patent.Executor
	patent.AssigneeDirectory
}

var _ patent.Store = searchStore{}
