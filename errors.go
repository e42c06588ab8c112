package main

import "errors"

var (
	errAccess             = errors.New("corpus root is not accessible")
	errNotFound           = errors.New("tune not found")
	errUnknownField       = errors.New("unknown tune field")
	errNoChanges          = errors.New("no fields to update")
	errInvalidID          = errors.New("invalid tune id")
	errIDRequired         = errors.New("tune ID is required")
	errInvalidQuery       = errors.New("invalid query")
	errConfigFileNotFound = errors.New("config file not found")
	errConfigFileRead     = errors.New("cannot read config file")
	errConfigInvalid      = errors.New("invalid config file")
	errRootEmpty          = errors.New("root cannot be empty")
	errDatabaseEmpty      = errors.New("database cannot be empty")
	errLockTimeout        = errors.New("lock timeout")
	errLockFileOpen       = errors.New("failed to open lock file")
	errStoreNotEmpty      = errors.New("store already holds tunes")
	errUnknownCommand     = errors.New("unknown command")
	errSkipped            = errors.New("file skipped")
)
