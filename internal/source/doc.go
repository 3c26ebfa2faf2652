// Package source provides Action sources with lifetimes of their own, to be
// passed to Engine.AddExternalActionSource.
//
// Ticker is an explicitly started and stopped clock owned by one engine
// instance; FileSource turns lines appended to a file into Actions.
package source
