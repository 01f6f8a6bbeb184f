// Package asm is the assembly context used while lowering one IR unit (a
// module or a script) into the pools of the binary module format.
//
// A Context interns every module, type, function, field, signature, constant,
// identifier and address the unit mentions into densely indexed pools,
// resolves references into already compiled dependencies and re-indexes the
// foreign types they carry onto local handles. Materialize turns the pools
// into ordered vectors exactly once.
//
// A Context is single-threaded and owns its dependency store for the duration
// of one compilation.
package asm

import (
	"irasm/internal/deps"
	"irasm/internal/fileformat"
	"irasm/internal/ir"
	"irasm/internal/pool"
	"irasm/internal/source"
	"irasm/internal/sourcemap"
	"irasm/internal/trace"
)

type moduleEntry struct {
	id     ir.ModuleIdent
	handle fileformat.ModuleHandle
}

type functionKey struct {
	module ir.ModuleName
	name   ir.FunctionName
}

type functionEntry struct {
	handle fileformat.FunctionHandle
	index  fileformat.FunctionHandleIndex
}

type memberKey struct {
	owner fileformat.DataTypeHandleIndex
	name  string
}

// FieldInfo is what the context remembers about one declared struct field.
type FieldInfo struct {
	Def   fileformat.StructDefinitionIndex
	Type  fileformat.SignatureToken
	Order int
}

// VariantInfo is what the context remembers about one declared enum variant.
type VariantInfo struct {
	Def        fileformat.EnumDefinitionIndex
	FieldCount int
	Tag        int
}

// Context accumulates the pools of one compilation unit.
type Context struct {
	deps    *deps.Store
	current *ir.ModuleIdent

	tracer trace.Tracer
	span   uint64
	strict bool

	aliases        map[ir.ModuleIdent]ir.ModuleName
	modules        map[ir.ModuleName]moduleEntry
	structs        map[ir.QualifiedDataTypeIdent]fileformat.DataTypeHandle
	structDefs     map[ir.DataTypeName]fileformat.StructDefinitionIndex
	enumDefs       map[ir.DataTypeName]fileformat.EnumDefinitionIndex
	namedConstants map[ir.ConstantName]fileformat.ConstantPoolIndex
	labels         *pool.Pool[ir.BlockLabel, ir.BlockLabel]

	fields             map[memberKey]FieldInfo
	variants           map[memberKey]VariantInfo
	functions          map[functionKey]functionEntry
	functionSignatures map[functionKey]ir.FunctionSignature

	moduleHandles   *pool.Pool[fileformat.ModuleHandle, fileformat.ModuleHandle]
	dataTypeHandles *pool.Pool[string, fileformat.DataTypeHandle]
	fieldHandles    *pool.Pool[fileformat.FieldHandle, fileformat.FieldHandle]
	structInsts     *pool.Pool[fileformat.StructDefInstantiation, fileformat.StructDefInstantiation]
	enumInsts       *pool.Pool[fileformat.EnumDefInstantiation, fileformat.EnumDefInstantiation]
	functionInsts   *pool.Pool[fileformat.FunctionInstantiation, fileformat.FunctionInstantiation]
	fieldInsts      *pool.Pool[fileformat.FieldInstantiation, fileformat.FieldInstantiation]
	signatures      *pool.Pool[string, fileformat.Signature]
	identifiers     *pool.Pool[fileformat.Identifier, fileformat.Identifier]
	addresses       *pool.Pool[fileformat.AccountAddress, fileformat.AccountAddress]
	constants       *pool.Pool[string, fileformat.Constant]

	currentFunction fileformat.FunctionDefinitionIndex

	sourceMap    *sourcemap.SourceMap
	materialized bool
}

// Option configures a Context.
type Option func(*Context)

// WithTracer routes resolution events to t.
func WithTracer(t trace.Tracer) Option {
	return func(c *Context) {
		if t != nil {
			c.tracer = t
		}
	}
}

// WithTraceParent parents emitted events to the given span.
func WithTraceParent(span uint64) Option {
	return func(c *Context) { c.span = span }
}

// WithStrictRedeclaration makes DeclareFunction reject a second declaration of
// the same (module, name) pair with a different signature.
func WithStrictRedeclaration(strict bool) Option {
	return func(c *Context) { c.strict = strict }
}

// NewContext creates an empty context for a unit declared at declLoc.
// current is the identity of the module being compiled, nil for a script;
// the front-end binds the Self alias with DeclareImport. A nil store starts
// an empty one.
func NewContext(declLoc source.Span, store *deps.Store, current *ir.ModuleIdent, opts ...Option) *Context {
	if store == nil {
		store = deps.NewStore()
	}
	c := &Context{
		deps:    store,
		current: current,
		tracer:  trace.Nop,

		aliases:        make(map[ir.ModuleIdent]ir.ModuleName),
		modules:        make(map[ir.ModuleName]moduleEntry),
		structs:        make(map[ir.QualifiedDataTypeIdent]fileformat.DataTypeHandle),
		structDefs:     make(map[ir.DataTypeName]fileformat.StructDefinitionIndex),
		enumDefs:       make(map[ir.DataTypeName]fileformat.EnumDefinitionIndex),
		namedConstants: make(map[ir.ConstantName]fileformat.ConstantPoolIndex),
		labels:         pool.New[ir.BlockLabel](pool.WithName("labels")),

		fields:             make(map[memberKey]FieldInfo),
		variants:           make(map[memberKey]VariantInfo),
		functions:          make(map[functionKey]functionEntry),
		functionSignatures: make(map[functionKey]ir.FunctionSignature),

		moduleHandles:   pool.New[fileformat.ModuleHandle](pool.WithName("module handles")),
		dataTypeHandles: pool.NewKeyed(fileformat.DataTypeHandle.Key, pool.WithName("data type handles")),
		fieldHandles:    pool.New[fileformat.FieldHandle](pool.WithName("field handles")),
		structInsts:     pool.New[fileformat.StructDefInstantiation](pool.WithName("struct instantiations")),
		enumInsts:       pool.New[fileformat.EnumDefInstantiation](pool.WithName("enum instantiations")),
		functionInsts:   pool.New[fileformat.FunctionInstantiation](pool.WithName("function instantiations")),
		fieldInsts:      pool.New[fileformat.FieldInstantiation](pool.WithName("field instantiations")),
		signatures:      pool.NewKeyed(fileformat.Signature.Key, pool.WithName("signatures")),
		identifiers:     pool.New[fileformat.Identifier](pool.WithName("identifiers")),
		addresses:       pool.New[fileformat.AccountAddress](pool.WithName("address identifiers")),
		constants:       pool.NewKeyed(fileformat.Constant.Key, pool.WithName("constants")),

		sourceMap: sourcemap.New(declLoc, current),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DeclLocation is the location the unit was declared at.
func (c *Context) DeclLocation() source.Span { return c.sourceMap.DefinitionLocation }

// CurrentModule returns the identity of the module being compiled; false for scripts.
func (c *Context) CurrentModule() (ir.ModuleIdent, bool) {
	if c.current == nil {
		return ir.ModuleIdent{}, false
	}
	return *c.current, true
}

// SourceMap is the location table the front-end fills while lowering.
func (c *Context) SourceMap() *sourcemap.SourceMap { return c.sourceMap }

// Dependencies exposes the store for read-only queries.
func (c *Context) Dependencies() *deps.Store { return c.deps }

// TakeDependencies moves the store out, leaving the context with an empty one.
func (c *Context) TakeDependencies() *deps.Store {
	taken := c.deps
	c.deps = deps.NewStore()
	return taken
}

// RestoreDependencies moves a store back in. The context must not have gained
// dependencies in the meantime.
func (c *Context) RestoreDependencies(store *deps.Store) {
	if !c.deps.IsEmpty() {
		panic("asm: RestoreDependencies over a non-empty store")
	}
	if store == nil {
		store = deps.NewStore()
	}
	c.deps = store
}

// AddCompiledDependency views m in place and adds it to the store. A module
// with an identity already present fails with DuplicateDependency.
func (c *Context) AddCompiledDependency(m *fileformat.CompiledModule) error {
	return c.deps.AddBorrowed(m)
}

func (c *Context) point(scope trace.Scope, name, detail string) {
	trace.Point(c.tracer, scope, name, c.span, detail)
}
