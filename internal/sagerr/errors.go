// Package sagerr carries the error-kind taxonomy shared across Sagitta's
// subsystems. Errors are values: callers wrap a sentinel with fmt.Errorf's
// %w verb and inspect with errors.Is/errors.As, the same way
// manifold/internal/persistence distinguishes ErrNotFound from ErrForbidden.
package sagerr

import "errors"

// Sentinel errors, one per error kind. Wrap these with context using
// fmt.Errorf("doing X: %w", sagerr.ErrNotFound) rather than constructing
// ad-hoc error strings, so callers can match on kind.
var (
	ErrNotInitialized        = errors.New("not initialized")
	ErrNotFound              = errors.New("not found")
	ErrInvalidParameter      = errors.New("invalid parameter")
	ErrIO                    = errors.New("io error")
	ErrGit                   = errors.New("git error")
	ErrVectorStore           = errors.New("vector store error")
	ErrEmbedding             = errors.New("embedding error")
	ErrNetwork               = errors.New("network error")
	ErrLLMProvider           = errors.New("llm provider error")
	ErrParse                 = errors.New("parse error")
	ErrSerialization         = errors.New("serialization error")
	ErrConversationCorrupted = errors.New("conversation corrupted")
	ErrCancelled             = errors.New("cancelled")
	ErrTimeout               = errors.New("timeout")
	ErrRateLimited           = errors.New("rate limited")
	ErrDimensionMismatch     = errors.New("embedding dimension mismatch")
	ErrConflict              = errors.New("conflict")
	ErrNotImplemented        = errors.New("not implemented")
)

// Kind classifies an error for retry/propagation policy decisions.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotInitialized
	KindNotFound
	KindInvalidParameter
	KindIO
	KindGit
	KindVectorStore
	KindEmbedding
	KindNetwork
	KindLLMProvider
	KindParse
	KindSerialization
	KindConversationCorrupted
	KindCancelled
	KindTimeout
	KindRateLimited
	KindDimensionMismatch
	KindConflict
	KindNotImplemented
)

var kindSentinels = map[Kind]error{
	KindNotInitialized:        ErrNotInitialized,
	KindNotFound:              ErrNotFound,
	KindInvalidParameter:      ErrInvalidParameter,
	KindIO:                    ErrIO,
	KindGit:                   ErrGit,
	KindVectorStore:           ErrVectorStore,
	KindEmbedding:             ErrEmbedding,
	KindNetwork:               ErrNetwork,
	KindLLMProvider:           ErrLLMProvider,
	KindParse:                 ErrParse,
	KindSerialization:         ErrSerialization,
	KindConversationCorrupted: ErrConversationCorrupted,
	KindCancelled:             ErrCancelled,
	KindTimeout:               ErrTimeout,
	KindRateLimited:           ErrRateLimited,
	KindDimensionMismatch:     ErrDimensionMismatch,
	KindConflict:              ErrConflict,
	KindNotImplemented:        ErrNotImplemented,
}

// Of classifies err by matching it against the known sentinels via errors.Is.
// Returns KindUnknown when err doesn't wrap any of them.
func Of(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	for k, sentinel := range kindSentinels {
		if errors.Is(err, sentinel) {
			return k
		}
	}
	return KindUnknown
}

// Transient reports whether the error kind warrants a retry with backoff
// (Network, RateLimited, Timeout).
func Transient(err error) bool {
	switch Of(err) {
	case KindNetwork, KindRateLimited, KindTimeout:
		return true
	default:
		return false
	}
}
