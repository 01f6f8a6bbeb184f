// Package trace records what the assembler did and how long it took.
//
// A Tracer receives span begin/end and point events. Spans nest by parent id;
// the driver opens one span per batch and one per unit, the assembly context
// emits module-scope points for imports and node-scope points for each foreign
// symbol it resolves.
//
//	irasm assemble --trace=- --trace-level=detail
//
// Implementations:
//
//   - Nop: disabled tracing, zero cost
//   - StreamTracer: writes every event as it happens (text or NDJSON)
//   - RingTracer: keeps the last N events, dumped when a batch fails
//   - MultiTracer: fans out to several tracers
//
// Levels gate scopes: phase shows driver and unit spans, detail adds module
// events, debug adds node-level resolution events.
//
// The tracer travels through context:
//
//	ctx = trace.WithTracer(ctx, tracer)
//	span := trace.Begin(trace.FromContext(ctx), trace.ScopeUnit, "unit:coin", parent)
//	defer span.End("")
package trace
