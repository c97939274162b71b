package protocol

import (
	"encoding/json"
	"strings"

	"gitlab.com/tozd/go/errors"
)

type DocumentURI string

type LanguageKind string

// Position is zero based. Character counts UTF-16 code units.
type Position struct {
	Line      uint32 `json:"line"`
	Character uint32 `json:"character"`
}

type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

type TextDocumentIdentifier struct {
	URI DocumentURI `json:"uri"`
}

type VersionedTextDocumentIdentifier struct {
	TextDocumentIdentifier
	Version int32 `json:"version"`
}

type TextDocumentItem struct {
	URI        DocumentURI  `json:"uri"`
	LanguageID LanguageKind `json:"languageId"`
	Version    int32        `json:"version"`
	Text       string       `json:"text"`
}

type TextDocumentPositionParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Position     Position               `json:"position"`
}

// 🚀 lifecycle

type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

type ParamInitialize struct {
	ProcessID             int32           `json:"processId,omitempty"`
	ClientInfo            *ClientInfo     `json:"clientInfo,omitempty"`
	RootURI               DocumentURI     `json:"rootUri,omitempty"`
	Capabilities          json.RawMessage `json:"capabilities,omitempty"`
	InitializationOptions json.RawMessage `json:"initializationOptions,omitempty"`
	Trace                 string          `json:"trace,omitempty"`
}

type TextDocumentSyncKind uint32

const (
	None        TextDocumentSyncKind = 0
	Full        TextDocumentSyncKind = 1
	Incremental TextDocumentSyncKind = 2
)

type SaveOptions struct {
	IncludeText bool `json:"includeText,omitempty"`
}

type TextDocumentSyncOptions struct {
	OpenClose bool                 `json:"openClose"`
	Change    TextDocumentSyncKind `json:"change"`
	Save      *SaveOptions         `json:"save,omitempty"`
}

type CompletionOptions struct {
	TriggerCharacters []string `json:"triggerCharacters,omitempty"`
	ResolveProvider   bool     `json:"resolveProvider,omitempty"`
}

type ServerCapabilities struct {
	TextDocumentSync           *TextDocumentSyncOptions `json:"textDocumentSync,omitempty"`
	HoverProvider              bool                     `json:"hoverProvider,omitempty"`
	CompletionProvider         *CompletionOptions       `json:"completionProvider,omitempty"`
	LinkedEditingRangeProvider bool                     `json:"linkedEditingRangeProvider,omitempty"`
	Experimental               any                      `json:"experimental,omitempty"`
}

type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

type InitializeResult struct {
	Capabilities ServerCapabilities `json:"capabilities"`
	ServerInfo   *ServerInfo        `json:"serverInfo,omitempty"`
}

type InitializedParams struct{}

type SetTraceParams struct {
	Value string `json:"value"`
}

type CancelParams struct {
	ID json.RawMessage `json:"id"`
}

type DidChangeConfigurationParams struct {
	Settings json.RawMessage `json:"settings,omitempty"`
}

// 📄 synchronization

type DidOpenTextDocumentParams struct {
	TextDocument TextDocumentItem `json:"textDocument"`
}

// TextDocumentContentChangeEvent replaces Range with Text, or the whole
// document when Range is nil.
type TextDocumentContentChangeEvent struct {
	Range *Range `json:"range,omitempty"`
	Text  string `json:"text"`
}

type DidChangeTextDocumentParams struct {
	TextDocument   VersionedTextDocumentIdentifier  `json:"textDocument"`
	ContentChanges []TextDocumentContentChangeEvent `json:"contentChanges"`
}

type DidSaveTextDocumentParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Text         *string                `json:"text,omitempty"`
}

type DidCloseTextDocumentParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
}

// 💡 language features

type HoverParams struct {
	TextDocumentPositionParams
}

type MarkupKind string

const (
	PlainText MarkupKind = "plaintext"
	Markdown  MarkupKind = "markdown"
)

type MarkupContent struct {
	Kind  MarkupKind `json:"kind"`
	Value string     `json:"value"`
}

// HoverContents accepts every hover shape servers send (MarkupContent, a
// MarkedString or an array of them) and always marshals as MarkupContent.
type HoverContents struct {
	MarkupContent
}

func (h *HoverContents) UnmarshalJSON(data []byte) error {
	mc, err := decodeMarked(data)
	if err != nil {
		return err
	}
	h.MarkupContent = mc
	return nil
}

func (h HoverContents) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.MarkupContent)
}

func decodeMarked(data []byte) (MarkupContent, error) {
	trimmed := strings.TrimSpace(string(data))
	switch {
	case trimmed == "" || trimmed == "null":
		return MarkupContent{Kind: PlainText}, nil
	case trimmed[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return MarkupContent{}, errors.Errorf("decoding marked string: %w", err)
		}
		return MarkupContent{Kind: Markdown, Value: s}, nil
	case trimmed[0] == '[':
		var parts []json.RawMessage
		if err := json.Unmarshal(data, &parts); err != nil {
			return MarkupContent{}, errors.Errorf("decoding marked string list: %w", err)
		}
		values := make([]string, 0, len(parts))
		for _, p := range parts {
			mc, err := decodeMarked(p)
			if err != nil {
				return MarkupContent{}, err
			}
			values = append(values, mc.Value)
		}
		return MarkupContent{Kind: Markdown, Value: strings.Join(values, "\n\n")}, nil
	}

	var obj struct {
		Kind     MarkupKind `json:"kind"`
		Language string     `json:"language"`
		Value    string     `json:"value"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return MarkupContent{}, errors.Errorf("decoding hover contents: %w", err)
	}
	if obj.Kind != "" {
		return MarkupContent{Kind: obj.Kind, Value: obj.Value}, nil
	}
	return MarkupContent{Kind: Markdown, Value: "```" + obj.Language + "\n" + obj.Value + "\n```"}, nil
}

type Hover struct {
	Contents HoverContents `json:"contents"`
	Range    *Range        `json:"range,omitempty"`
}

type CompletionTriggerKind uint32

const (
	Invoked                         CompletionTriggerKind = 1
	TriggerCharacter                CompletionTriggerKind = 2
	TriggerForIncompleteCompletions CompletionTriggerKind = 3
)

type CompletionContext struct {
	TriggerKind      CompletionTriggerKind `json:"triggerKind"`
	TriggerCharacter string                `json:"triggerCharacter,omitempty"`
}

type CompletionParams struct {
	TextDocumentPositionParams
	Context *CompletionContext `json:"context,omitempty"`
}

type TextEdit struct {
	Range   Range  `json:"range"`
	NewText string `json:"newText"`
}

// CompletionTextEdit is either a TextEdit (Range set) or an InsertReplaceEdit
// (Insert and Replace set).
type CompletionTextEdit struct {
	NewText string `json:"newText"`
	Range   *Range `json:"range,omitempty"`
	Insert  *Range `json:"insert,omitempty"`
	Replace *Range `json:"replace,omitempty"`
}

type Command struct {
	Title     string            `json:"title"`
	Command   string            `json:"command"`
	Arguments []json.RawMessage `json:"arguments,omitempty"`
}

type CompletionItem struct {
	Label               string              `json:"label"`
	Kind                uint32              `json:"kind,omitempty"`
	Detail              string              `json:"detail,omitempty"`
	Documentation       json.RawMessage     `json:"documentation,omitempty"`
	Deprecated          bool                `json:"deprecated,omitempty"`
	Preselect           bool                `json:"preselect,omitempty"`
	SortText            string              `json:"sortText,omitempty"`
	FilterText          string              `json:"filterText,omitempty"`
	InsertText          string              `json:"insertText,omitempty"`
	InsertTextFormat    uint32              `json:"insertTextFormat,omitempty"`
	TextEdit            *CompletionTextEdit `json:"textEdit,omitempty"`
	AdditionalTextEdits []TextEdit          `json:"additionalTextEdits,omitempty"`
	CommitCharacters    []string            `json:"commitCharacters,omitempty"`
	Command             *Command            `json:"command,omitempty"`
	Data                json.RawMessage     `json:"data,omitempty"`
}

type CompletionList struct {
	IsIncomplete bool             `json:"isIncomplete"`
	Items        []CompletionItem `json:"items"`
}

// DecodeCompletionResult reads a completion response, which is a list, a
// bare item array, or null.
func DecodeCompletionResult(data []byte) (*CompletionList, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var items []CompletionItem
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, errors.Errorf("decoding completion items: %w", err)
		}
		return &CompletionList{Items: NonNilSlice(items)}, nil
	}
	var list CompletionList
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, errors.Errorf("decoding completion list: %w", err)
	}
	list.Items = NonNilSlice(list.Items)
	return &list, nil
}

type LinkedEditingRangeParams struct {
	TextDocumentPositionParams
}

type LinkedEditingRanges struct {
	Ranges      []Range `json:"ranges"`
	WordPattern string  `json:"wordPattern,omitempty"`
}

// 📦 virtual documents

type TextDocumentContentParams struct {
	URI DocumentURI `json:"uri"`
}

type TextDocumentContentResult struct {
	Text string `json:"text"`
}

type ConfigurationItem struct {
	ScopeURI DocumentURI `json:"scopeUri,omitempty"`
	Section  string      `json:"section,omitempty"`
}

type ParamConfiguration struct {
	Items []ConfigurationItem `json:"items"`
}

// AutoInsertParams asks for the text to insert after a `>` (autoClose) or
// `=` (autoQuote) was typed.
type AutoInsertParams struct {
	Kind         string                 `json:"kind"`
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Position     Position               `json:"position"`
}

type ScriptingSpansParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
}

type ScriptingSpan struct {
	Start  int   `json:"start"`
	End    int   `json:"end"`
	Output bool  `json:"output"`
	Range  Range `json:"range"`
}

type ScriptingSpansResult struct {
	Spans  []ScriptingSpan `json:"spans"`
	Masked string          `json:"masked"`
}

// 🪵 window

type MessageType uint32

const (
	Error   MessageType = 1
	Warning MessageType = 2
	Info    MessageType = 3
	Log     MessageType = 4
	Debug   MessageType = 5
)

type LogMessageParams struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}

type ShowMessageParams struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}

func NonNilSlice[T any](x []T) []T {
	if x == nil {
		return []T{}
	}
	return x
}

func NewHoverParams(uri string, position Position) *HoverParams {
	return &HoverParams{
		TextDocumentPositionParams: TextDocumentPositionParams{
			TextDocument: TextDocumentIdentifier{URI: DocumentURI(uri)},
			Position:     position,
		},
	}
}
