package functions

import "context"

// These narrow, structurally-satisfied interfaces let tool
// implementations call into WorkingContext/RecallLog/ArchivalStore/the
// outbound message sink without pkg/functions importing pkg/memory (which
// itself composes pkg/functions as its Function Registry). Go interface
// satisfaction is structural, so pkg/memory's concrete types need no
// changes to satisfy these.

// WorkingContextEditor is the subset of Working Context operations the
// core_memory_* tools need.
type WorkingContextEditor interface {
	EditAppend(section, content string) error
	EditReplace(section, oldContent, newContent string) error
	LastHumanID() (int, bool)
}

// RecallSearcher is the subset of Recall Log operations the
// conversation_search* tools need.
type RecallSearcher interface {
	TextSearch(query string, forUserID, count, offset int) (results []SearchRecord, total int)
	DateSearch(start, end string, forUserID, count, offset int) (results []SearchRecord, total int)
}

// SearchRecord is the minimal shape conversation_search needs to render
// a result line; it mirrors the fields of memory.Record without
// importing the package.
type SearchRecord struct {
	Timestamp string
	Role      string
	Content   string
}

// ArchivalSearcher is the subset of Archival Store operations the
// archival_memory_* tools need.
type ArchivalSearcher interface {
	Insert(ctx context.Context, userID int, content string) error
	Search(ctx context.Context, query string, userID, count, offset int) (results []ArchivalRecord, total int)
}

// ArchivalRecord mirrors archival.Record's rendering-relevant fields.
type ArchivalRecord struct {
	Timestamp string
	Content   string
}

// MessageSink is how send_message hands the model's user-facing text to
// the conversation's outbound stream (the HTTP layer's
// assistant_message server-message-stack entry).
type MessageSink interface {
	AssistantMessage(text string)
}

// Deps bundles every collaborator a function-set factory might need.
// Not every tool uses every field; factories take only what they need.
type Deps struct {
	WorkingContext WorkingContextEditor
	Recall         RecallSearcher
	Archival       ArchivalSearcher
	Outbound       MessageSink
	WebSearch      Searcher
	CodeExecutor   Executor
}
