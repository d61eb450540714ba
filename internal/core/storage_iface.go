package core

// Storage persists small widget-owned values, notably the generated
// client device id. Get returns ok=false for missing keys.
type Storage interface {
	Get(key string) (value string, ok bool)
	Set(key, value string) error
	Remove(key string) error
}
