package kv

import "errors"

// ErrDatabaseExists is returned by CreateDatabase when the named sub-table
// has already been registered on this environment.
var ErrDatabaseExists = errors.New("kv: database already exists")

// ErrActiveReadersOnResize is returned by ConsiderResize when a resize was
// warranted but could not proceed because readers were active. The caller
// should retry later; no data has been lost or corrupted.
var ErrActiveReadersOnResize = errors.New("kv: cannot resize while readers are active")
