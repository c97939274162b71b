package protocol

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/creachadair/jrpc2"
	"github.com/rs/xid"
	"github.com/rs/zerolog"

	"github.com/walteh/erbls/pkg/debug"
)

// myLoggerId marks log lines written by this process, so lines relayed from
// a backend language server can be told apart.
var myLoggerId = xid.New().String()

type MultiRPCLogger struct {
	mu      sync.Mutex
	loggers []jrpc2.RPCLogger
}

var _ jrpc2.RPCLogger = (*MultiRPCLogger)(nil)

func NewMultiRPCLogger(loggers ...jrpc2.RPCLogger) *MultiRPCLogger {
	return &MultiRPCLogger{loggers: loggers}
}

func (m *MultiRPCLogger) LogRequest(ctx context.Context, req *jrpc2.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, logger := range m.loggers {
		logger.LogRequest(ctx, req)
	}
}

func (m *MultiRPCLogger) LogResponse(ctx context.Context, resp *jrpc2.Response) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, logger := range m.loggers {
		logger.LogResponse(ctx, resp)
	}
}

func (m *MultiRPCLogger) AddLogger(logger jrpc2.RPCLogger) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loggers = append(m.loggers, logger)
}

// ZerologRPCLogger writes one debug line per message to the context logger.
type ZerologRPCLogger struct {
	logger zerolog.Logger
}

var _ jrpc2.RPCLogger = (*ZerologRPCLogger)(nil)

func NewZerologRPCLogger(logger zerolog.Logger) *ZerologRPCLogger {
	return &ZerologRPCLogger{logger: logger}
}

func (z *ZerologRPCLogger) LogRequest(ctx context.Context, req *jrpc2.Request) {
	z.logger.Debug().
		Str("rpc_method", req.Method()).
		Str("rpc_id", req.ID()).
		Int("params_len", len(req.ParamString())).
		Msg("rpc request")
}

func (z *ZerologRPCLogger) LogResponse(ctx context.Context, resp *jrpc2.Response) {
	ev := z.logger.Debug().Str("rpc_id", resp.ID())
	if resp.Error() != nil {
		ev = ev.AnErr("rpc_error", resp.Error())
	}
	ev.Int("result_len", len(resp.ResultString())).Msg("rpc response")
}

// ExtendedLogMessageParams is a window/logMessage payload carrying the
// structured fields of the zerolog line it came from.
type ExtendedLogMessageParams struct {
	Type         MessageType    `json:"type"`
	Message      string         `json:"message"`
	Extra        map[string]any `json:"extra,omitempty"`
	Time         string         `json:"time,omitempty"`
	Source       string         `json:"source,omitempty"`
	IsDependency bool           `json:"is_dependency,omitempty"`
}

// ApplyServerInstanceToZerolog routes the context logger to the editor: the
// server owns stdout, so its logs travel as window/logMessage notifications.
func ApplyServerInstanceToZerolog(ctx context.Context, client Callbacker) context.Context {
	writer := &logWriter{
		client: client,
		ctx:    ctx,
	}

	level := zerolog.Ctx(ctx).GetLevel()

	return zerolog.New(writer).With().
		Str("id", myLoggerId).
		Str("lsp_role", "server").
		Logger().
		Level(level).
		Hook(debug.CustomTimeHook{WithColor: false}).
		Hook(debug.CustomCallerHook{WithColor: false}).
		WithContext(ctx)
}

// ApplyBackendToZerolog tags the context logger with the backend a message
// belongs to.
func ApplyBackendToZerolog(ctx context.Context, extension string) context.Context {
	return zerolog.Ctx(ctx).With().
		Str("id", myLoggerId).
		Str("lsp_role", "client").
		Str("backend", extension).
		Logger().
		WithContext(ctx)
}

func ApplyRequestToZerolog(ctx context.Context, req *jrpc2.Request) context.Context {
	return zerolog.Ctx(ctx).With().Str("rpc_method", req.Method()).Str("rpc_id", req.ID()).Logger().WithContext(ctx)
}

type logWriter struct {
	client Callbacker
	mu     sync.Mutex
	ctx    context.Context
}

func (w *logWriter) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var logEntry map[string]any
	if err := json.Unmarshal(p, &logEntry); err != nil {
		return len(p), nil
	}

	notification := &ExtendedLogMessageParams{
		Type:    ParseMessageTypeFromZerolog(extractField(logEntry, "level", "info")),
		Message: extractField(logEntry, "message", ""),
		Time:    extractField(logEntry, "time", ""),
		Source:  extractField(logEntry, "caller", ""),
	}
	notification.IsDependency = extractField(logEntry, "id", "") != myLoggerId
	notification.Extra = logEntry

	if w.client != nil {
		// a closed connection must not turn logging into an error
		_ = w.client.Notify(w.ctx, MethodLogMessage, notification)
	}

	return len(p), nil
}

func extractField(entry map[string]any, key, defaultValue string) string {
	if v, ok := entry[key].(string); ok {
		delete(entry, key)
		return v
	}
	return defaultValue
}

// ParseMessageTypeFromZerolog converts zerolog level to LSP MessageType
func ParseMessageTypeFromZerolog(level string) MessageType {
	switch level {
	case "error", "fatal", "panic":
		return Error
	case "warn":
		return Warning
	case "info":
		return Info
	case "debug":
		return Debug
	default:
		return Log
	}
}
