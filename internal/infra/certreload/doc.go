// Package certreload keeps a TLS key pair in sync with its files.
//
// A Reloader loads the pair once up front and then watches both files
// with fsnotify. Changes are debounced so a cert and key written one after
// the other produce a single reload; a pair that fails to load leaves the
// previous certificate in service.
package certreload
