// Package testutil contains helper builders used across tests to reduce
// boilerplate when constructing conversations (text, function call and tool
// call messages). They are not intended for production usage.
package testutil
