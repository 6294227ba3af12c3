// Package connectors provides implementations of the DocumentSource
// interface. A source knows how to list owners and fetch their documents
// from a specific portal or export. Sources that can observe their own
// changes also provide a SourceWatcher.
package connectors
