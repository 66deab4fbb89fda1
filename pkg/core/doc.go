// Package core defines the shared language of the VectorFlow system.
//
// This package contains:
//   - Graph entities (Node, Edge, Graph, Connection)
//   - Persistence projections (CanvasState, PipelineFile, PipelineRecord)
//   - Service interfaces (PipelineStore, DraftStore)
//   - Node-type metadata (NodeType, FieldSpec)
//   - Execution wire types (Event, ExecuteRequest) and run state
//   - Analysis results (Analysis, ValidationReport, Verdict)
//
// The Golden Rule: pkg/core imports ONLY stdlib.
// All other packages depend on core, not the reverse.
package core
