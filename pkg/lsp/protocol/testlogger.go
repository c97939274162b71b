package protocol

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/creachadair/jrpc2"
	"github.com/rs/zerolog"
)

const maxLoggedLength = 1000

func DebugAll() bool {
	return os.Getenv("DEBUG_LSP_ALL") == "1" || os.Getenv("DEBUG") == "1"
}

func DebugIsHuman() bool {
	return os.Getenv("HUMAN") == "1"
}

// CallbackRPCLogger also sees messages the server sends to the editor.
type CallbackRPCLogger interface {
	LogCallbackRequestRaw(ctx context.Context, method string, params any)
	LogCallbackResponse(ctx context.Context, res *jrpc2.Response)
}

type rpcTestLogger struct {
	logger        zerolog.TestingLog
	rewrites      map[string]string
	logMessages   bool
	bigMessages   bool
	enableRPCLogs bool
	isHuman       bool
}

var _ jrpc2.RPCLogger = (*rpcTestLogger)(nil)
var _ CallbackRPCLogger = (*rpcTestLogger)(nil)

// NewTestLogger logs rpc traffic to t. Every key of rewrites found in the
// output is replaced by its value, which keeps temp paths out of the logs.
func NewTestLogger(t zerolog.TestingLog, rewrites map[string]string) jrpc2.RPCLogger {
	if rewrites == nil {
		rewrites = make(map[string]string)
	}

	lgr := &rpcTestLogger{
		logger:        t,
		rewrites:      rewrites,
		isHuman:       DebugIsHuman(),
		logMessages:   DebugAll(),
		enableRPCLogs: DebugAll(),
		bigMessages:   os.Getenv("DEBUG_LSP_BIG_MESSAGES") == "1",
	}

	for k, v := range rewrites {
		lgr.logger.Logf("FYI: '%s' will be rewritten to '%s' in logs for this test", k, v)
	}
	if !lgr.enableRPCLogs {
		lgr.logger.Logf("FYI: rpc logs are suppressed - set DEBUG=1 to see them")
	}
	if !lgr.bigMessages {
		lgr.logger.Logf("FYI: messages over %d chars are suppressed - set DEBUG_LSP_BIG_MESSAGES=1 to see them", maxLoggedLength)
	}

	return lgr
}

type fancyRequest struct {
	ID     string `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params"`
}

type fancyResponse struct {
	ID     string `json:"id"`
	Result any    `json:"result"`
	Error  any    `json:"error"`
}

func (l *rpcTestLogger) LogRequest(ctx context.Context, req *jrpc2.Request) {
	l.namedRequestLog("client", req.ID(), req.Method(), req.ParamString(), req.UnmarshalParams)
}

func (l *rpcTestLogger) LogResponse(ctx context.Context, res *jrpc2.Response) {
	l.namedResponseLog("server", res)
}

func (l *rpcTestLogger) LogCallbackRequestRaw(ctx context.Context, method string, params any) {
	raw, err := json.Marshal(params)
	if err != nil {
		l.logger.Logf("failed to marshal params: %v", err)
		return
	}
	l.namedRequestLog("server (callback)", "", method, string(raw), func(v any) error {
		return json.Unmarshal(raw, v)
	})
}

func (l *rpcTestLogger) LogCallbackResponse(ctx context.Context, res *jrpc2.Response) {
	l.namedResponseLog("client (callback)", res)
}

func (l *rpcTestLogger) namedRequestLog(name, id, method, params string, decode func(any) error) {
	if !l.enableRPCLogs {
		return
	}
	if method == MethodLogMessage && !l.logMessages {
		return
	}

	var v any
	if len(params) > maxLoggedLength && !l.bigMessages {
		v = fmt.Sprintf("suppressed %d chars", len(params))
	} else if err := decode(&v); err != nil {
		v = params
	}

	if id == "" {
		id = "notification"
	}
	l.logger.Logf("lsp %s request:%s", name, l.formatJSON(fancyRequest{ID: id, Method: method, Params: v}))
}

func (l *rpcTestLogger) namedResponseLog(name string, res *jrpc2.Response) {
	if !l.enableRPCLogs {
		return
	}

	var v any
	if n := len(res.ResultString()); n > maxLoggedLength && !l.bigMessages {
		v = fmt.Sprintf("suppressed %d chars", n)
	} else if err := res.UnmarshalResult(&v); err != nil {
		v = res.ResultString()
	}

	var rerr any
	if res.Error() != nil {
		rerr = res.Error()
	}
	l.logger.Logf("lsp %s response:%s", name, l.formatJSON(fancyResponse{ID: res.ID(), Result: v, Error: rerr}))
}

func (l *rpcTestLogger) formatJSON(s any) string {
	prefix, suffix := " ", ""
	if l.isHuman {
		prefix, suffix = "\n\n", "\n\n"
	}

	buf := bytes.NewBuffer(nil)
	enc := json.NewEncoder(buf)
	if l.isHuman {
		enc.SetIndent("", "\t")
	}
	if err := enc.Encode(s); err != nil {
		return prefix + fmt.Sprintf("%+v", s) + suffix
	}

	str := strings.TrimSpace(buf.String())
	for k, v := range l.rewrites {
		str = strings.ReplaceAll(str, k, v)
	}
	return prefix + str + suffix
}
