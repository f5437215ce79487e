package db

import "fmt"

// Common errors
var (
	ErrCacheMiss          = fmt.Errorf("cache miss")
	ErrInvalidInput       = fmt.Errorf("invalid input")
	ErrDatabaseConnection = fmt.Errorf("database connection error")
)
