package util

import "github.com/google/uuid"

// NewID generates a new unique identifier for tasks, tool calls and steps.
func NewID() string { return uuid.NewString() }
