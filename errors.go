package fundgraph

import (
	"errors"

	"github.com/brunobiangulo/fundgraph/executor"
	"github.com/brunobiangulo/fundgraph/parser"
	"github.com/brunobiangulo/fundgraph/registry"
	"github.com/brunobiangulo/fundgraph/store"
	"github.com/brunobiangulo/fundgraph/synth"
)

var (
	// ErrNoQueryFound is reported when the model reply holds no SPARQL query.
	// Ask surfaces it as the Error text of the response, not as an error.
	ErrNoQueryFound = synth.ErrNoQueryFound

	// ErrQueryExecution wraps parse and evaluation failures of a query.
	ErrQueryExecution = executor.ErrQueryExecution

	// ErrLLMUnavailable is returned when the LLM provider is unreachable.
	ErrLLMUnavailable = errors.New("fundgraph: LLM provider unavailable")

	// ErrInvalidConfig is returned for invalid configuration values.
	ErrInvalidConfig = errors.New("fundgraph: invalid configuration")

	// ErrStoreClosed is returned when operating on a closed store.
	ErrStoreClosed = store.ErrStoreClosed

	// ErrGraphEmpty is returned when an operation needs a loaded graph, or
	// when an ingestion produced no statements.
	ErrGraphEmpty = errors.New("fundgraph: graph is empty")

	// ErrUnsupportedFormat is returned for unrecognized spreadsheet formats.
	ErrUnsupportedFormat = parser.ErrUnsupportedFormat

	// ErrCompanyNotFound is returned when a company is neither in the graph
	// nor in the registry directory.
	ErrCompanyNotFound = registry.ErrCompanyNotFound

	// ErrDocumentNotFound is returned when no registry extract exists for a UID.
	ErrDocumentNotFound = registry.ErrDocumentNotFound
)
