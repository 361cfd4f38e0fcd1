package rag

import (
	"errors"
	"fmt"
)

// ConfigurationError reports invalid pipeline parameters. It is fatal at startup.
type ConfigurationError struct {
	// Field names the offending setting (e.g. "CHUNK_OVERLAP").
	Field string
	// Reason describes the violated constraint.
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// ProviderUnavailableError reports that an embedding or generation backend
// could not be reached or kept failing after retries.
type ProviderUnavailableError struct {
	// Provider is "embedding" or "generation".
	Provider string
	// Err is the last underlying failure.
	Err error
}

func (e *ProviderUnavailableError) Error() string {
	return fmt.Sprintf("%s provider unavailable: %v", e.Provider, e.Err)
}

func (e *ProviderUnavailableError) Unwrap() error { return e.Err }

// EmptyIndexError reports that the vector store holds no chunks, or holds
// chunks from an indexing run that never completed.
type EmptyIndexError struct {
	// Collection is the store collection that was queried.
	Collection string
	// Unfinished is set when chunks exist but no run recorded a manifest.
	Unfinished bool
}

func (e *EmptyIndexError) Error() string {
	if e.Unfinished {
		return fmt.Sprintf("index %q was never completed: run `paperqa index` to build it", e.Collection)
	}
	return fmt.Sprintf("index %q is empty: run `paperqa index` to build it", e.Collection)
}

// RetrievalError reports a vector store failure during search.
type RetrievalError struct {
	Err error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieval failed: %v", e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// MalformedRequestError reports an invalid question from the caller.
type MalformedRequestError struct {
	Reason string
}

func (e *MalformedRequestError) Error() string {
	return "malformed request: " + e.Reason
}

// IncompatibleIndexError reports that the index was built with a different
// embedding model than the one currently configured.
type IncompatibleIndexError struct {
	// Indexed is the identity recorded when the index was built.
	Indexed string
	// Configured is the identity of the embedder in use now.
	Configured string
}

func (e *IncompatibleIndexError) Error() string {
	return fmt.Sprintf("index was built with %s but the configured embedder is %s: rebuild with `paperqa index --rebuild`",
		e.Indexed, e.Configured)
}

// IsUnavailable reports whether err should surface as 503 Service Unavailable.
func IsUnavailable(err error) bool {
	var (
		pu *ProviderUnavailableError
		ei *EmptyIndexError
		re *RetrievalError
		ii *IncompatibleIndexError
	)
	return errors.As(err, &pu) || errors.As(err, &ei) || errors.As(err, &re) || errors.As(err, &ii)
}
