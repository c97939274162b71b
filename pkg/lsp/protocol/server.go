package protocol

import (
	"context"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/handler"
)

const (
	MethodAutoInsert          = "erb/autoInsert"
	MethodScriptingSpans      = "erb/scriptingSpans"
	MethodTextDocumentContent = "workspace/textDocumentContent"
	MethodLogMessage          = "window/logMessage"
	MethodShowMessage         = "window/showMessage"
	MethodCancelRequest       = "$/cancelRequest"
)

var (
	RequestCancelledError = &jrpc2.Error{Code: -32800, Message: "JSON RPC cancelled"}
)

// Server is the editor facing surface of the language server.
type Server interface {
	Initialize(ctx context.Context, params *ParamInitialize) (*InitializeResult, error)
	Initialized(ctx context.Context, params *InitializedParams) error
	Shutdown(ctx context.Context) error
	Exit(ctx context.Context) error
	SetTrace(ctx context.Context, params *SetTraceParams) error
	DidChangeConfiguration(ctx context.Context, params *DidChangeConfigurationParams) error

	DidOpen(ctx context.Context, params *DidOpenTextDocumentParams) error
	DidChange(ctx context.Context, params *DidChangeTextDocumentParams) error
	DidSave(ctx context.Context, params *DidSaveTextDocumentParams) error
	DidClose(ctx context.Context, params *DidCloseTextDocumentParams) error

	Hover(ctx context.Context, params *HoverParams) (*Hover, error)
	Completion(ctx context.Context, params *CompletionParams) (*CompletionList, error)
	LinkedEditingRange(ctx context.Context, params *LinkedEditingRangeParams) (*LinkedEditingRanges, error)

	AutoInsert(ctx context.Context, params *AutoInsertParams) (*string, error)
	ScriptingSpans(ctx context.Context, params *ScriptingSpansParams) (*ScriptingSpansResult, error)
	TextDocumentContent(ctx context.Context, params *TextDocumentContentParams) (*TextDocumentContentResult, error)
}

// Client is what the server may send back to the editor.
type Client interface {
	LogMessage(ctx context.Context, params *LogMessageParams) error
	ShowMessage(ctx context.Context, params *ShowMessageParams) error
}

func buildServerDispatchMap(server Server) handler.Map {
	return handler.Map{
		"initialize":                       createHandler(server.Initialize),
		"initialized":                      createEmptyResultHandler(server.Initialized),
		"shutdown":                         createEmptyHandler(server.Shutdown),
		"exit":                             createEmptyHandler(server.Exit),
		"$/setTrace":                       createEmptyResultHandler(server.SetTrace),
		"workspace/didChangeConfiguration": createEmptyResultHandler(server.DidChangeConfiguration),
		"textDocument/didOpen":             createEmptyResultHandler(server.DidOpen),
		"textDocument/didChange":           createEmptyResultHandler(server.DidChange),
		"textDocument/didSave":             createEmptyResultHandler(server.DidSave),
		"textDocument/didClose":            createEmptyResultHandler(server.DidClose),
		"textDocument/hover":               createHandler(server.Hover),
		"textDocument/completion":          createHandler(server.Completion),
		"textDocument/linkedEditingRange":  createHandler(server.LinkedEditingRange),
		MethodAutoInsert:                   createHandler(server.AutoInsert),
		MethodScriptingSpans:               createHandler(server.ScriptingSpans),
		MethodTextDocumentContent:          createHandler(server.TextDocumentContent),
		MethodCancelRequest:                createEmptyResultHandler(func(ctx context.Context, _ *CancelParams) error { return nil }),
	}
}

func newParseError(err error) *jrpc2.Error {
	return &jrpc2.Error{
		Code:    -32700, // Parse error
		Message: err.Error(),
	}
}

// withCancel turns a request whose context is already done into the LSP
// cancellation error instead of running it.
func withCancel(ctx context.Context) error {
	if ctx.Err() != nil {
		return RequestCancelledError
	}
	return nil
}

func createHandler[T any, O any](method func(ctx context.Context, params *T) (O, error)) jrpc2.Handler {
	return func(ctx context.Context, r *jrpc2.Request) (any, error) {
		if err := withCancel(ctx); err != nil {
			return nil, err
		}
		ctx = ApplyRequestToZerolog(ctx, r)
		var params T
		if r.ParamString() != "" {
			if err := r.UnmarshalParams(&params); err != nil {
				return nil, newParseError(err)
			}
		}
		result, err := method(ctx, &params)
		if err != nil {
			return nil, err
		}
		return result, nil
	}
}

func createEmptyResultHandler[T any](method func(ctx context.Context, params *T) error) jrpc2.Handler {
	return func(ctx context.Context, r *jrpc2.Request) (any, error) {
		if err := withCancel(ctx); err != nil {
			return nil, err
		}
		ctx = ApplyRequestToZerolog(ctx, r)
		var params T
		if r.ParamString() != "" {
			if err := r.UnmarshalParams(&params); err != nil {
				return nil, newParseError(err)
			}
		}
		return nil, method(ctx, &params)
	}
}

func createEmptyHandler(method func(ctx context.Context) error) jrpc2.Handler {
	return func(ctx context.Context, r *jrpc2.Request) (any, error) {
		if err := withCancel(ctx); err != nil {
			return nil, err
		}
		ctx = ApplyRequestToZerolog(ctx, r)
		return nil, method(ctx)
	}
}

// NewServerServer builds a jrpc2 server dispatching to server. The returned
// CallbackClient reaches the connected editor once the server is started.
func NewServerServer(ctx context.Context, server Server, opts *jrpc2.ServerOptions) (*jrpc2.Server, *CallbackClient) {
	if opts == nil {
		opts = &jrpc2.ServerOptions{}
	}

	opts.AllowPush = true

	var callbackClient *CallbackClient

	opts.NewContext = func() context.Context {
		if callbackClient == nil {
			return ctx
		}
		return ApplyServerInstanceToZerolog(ctx, callbackClient)
	}

	result := jrpc2.NewServer(buildServerDispatchMap(server), opts)

	callbackClient = NewCallbackClient(result, opts)

	return result, callbackClient
}

type Callbacker interface {
	Callback(ctx context.Context, method string, params any) (*jrpc2.Response, error)
	Notify(ctx context.Context, method string, params any) error
}

var _ Client = (*CallbackClient)(nil)
var _ Callbacker = (*CallbackClient)(nil)

// CallbackClient sends server initiated messages to the editor.
type CallbackClient struct {
	serverOpts *jrpc2.ServerOptions
	server     *jrpc2.Server
}

func NewCallbackClient(server *jrpc2.Server, serverOpts *jrpc2.ServerOptions) *CallbackClient {
	return &CallbackClient{server: server, serverOpts: serverOpts}
}

func (c *CallbackClient) Notify(ctx context.Context, method string, params any) error {
	if rl, ok := c.serverOpts.RPCLog.(CallbackRPCLogger); ok {
		rl.LogCallbackRequestRaw(ctx, method, params)
	}
	return c.server.Notify(ctx, method, params)
}

func (c *CallbackClient) Callback(ctx context.Context, method string, params any) (*jrpc2.Response, error) {
	if rl, ok := c.serverOpts.RPCLog.(CallbackRPCLogger); ok {
		rl.LogCallbackRequestRaw(ctx, method, params)
	}

	res, err := c.server.Callback(ctx, method, params)
	if err != nil {
		return nil, err
	}

	if rl, ok := c.serverOpts.RPCLog.(CallbackRPCLogger); ok {
		rl.LogCallbackResponse(ctx, res)
	}

	return res, nil
}

func (c *CallbackClient) LogMessage(ctx context.Context, params *LogMessageParams) error {
	return createNotify(ctx, c, MethodLogMessage, params)
}

func (c *CallbackClient) ShowMessage(ctx context.Context, params *ShowMessageParams) error {
	return createNotify(ctx, c, MethodShowMessage, params)
}

func createNotify[I any](ctx context.Context, client Callbacker, method string, params *I) error {
	return client.Notify(ctx, method, params)
}

// Call issues method on client and decodes its result into result when it
// is not nil.
func Call[I any, O any](ctx context.Context, client *jrpc2.Client, method string, params *I, result *O) error {
	res, err := client.Call(ctx, method, params)
	if err != nil {
		return err
	}
	if result != nil {
		return res.UnmarshalResult(result)
	}
	return nil
}
