// Package memory is a small key/value bookkeeping store for run-time facts
// such as which account is currently active.
package memory

// Memory stores process bookkeeping items. Keys are unique; Set overwrites.
type Memory interface {
	Set(key, value string) error
	Get(key string) (string, bool, error)
	Delete(key string) error
	Clear() error
	Close() error
}

// ActiveAccountKey names the bookkeeping item holding the id of the account
// currently holding a session.
const ActiveAccountKey = "active_account"
