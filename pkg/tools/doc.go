// Package tools provides the tools the agent calls while solving a quiz:
// page rendering, context extraction, file download, answer submission,
// Python execution and dependency installation.
//
// Tools are registered in a Registry, which validates parameters against a
// JSON schema, bounds execution time and output size, and turns failures into
// an ErrorResponse the model can act on. Network work runs on the shared
// bridge and HTTP client; rendered pages are cached.
package tools
