package models

import "fmt"

// ErrConfigurationInvalid is the only error class that aborts a run
var ErrConfigurationInvalid = fmt.Errorf("invalid configuration")
