package functions

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
)

// SetBase is the always-in-context core memory/recall/archival function
// set, grounded on llm_os/functions/function_sets/base.py.
const SetBase SetName = "base"

// RetrievalPageSize is the default page size for the paginated search
// functions (conversation_search, conversation_search_date,
// archival_memory_search). Mirrors RETRIEVAL_QUERY_DEFAULT_PAGE_SIZE.
const RetrievalPageSize = 5

var initBaseOnce bool //nolint:gochecknoglobals // guarded by RegisterBase's idempotency check

// RegisterBase registers the base function set. Call once at process
// startup, before Seal().
func RegisterBase() {
	if initBaseOnce {
		return
	}
	initBaseOnce = true

	Register(SetBase, true, Definition{
		Name:        "send_message",
		Description: "Sends a message to the human user. If you need to use other functions to respond to the user's query, use them before using this function.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]*Property{
				"message": {Type: "string", Description: "Message contents. All unicode (including emojis) are supported."},
			},
			Required: []string{"message"},
		},
	}, []string{"message"}, newSendMessage)

	Register(SetBase, true, Definition{
		Name:        "core_memory_append",
		Description: "Append to the contents of core memory.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]*Property{
				"section_name": {Type: "string", Description: "Section of the memory to be edited ('persona' to edit your persona or 'human' to edit the persona of the human who last sent you a message)."},
				"content":      {Type: "string", Description: "Content to write to the memory. All unicode (including emojis) are supported."},
			},
			Required: []string{"section_name", "content"},
		},
	}, []string{"section_name", "content"}, newCoreMemoryAppend)

	Register(SetBase, true, Definition{
		Name:        "core_memory_replace",
		Description: "Replace the contents of core memory. To delete memories, use an empty string for new_content.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]*Property{
				"section_name": {Type: "string", Description: "Section of the memory to be edited ('persona' or 'human')."},
				"old_content":  {Type: "string", Description: "String to replace. Must be an exact match."},
				"new_content":  {Type: "string", Description: "Content to write to the memory. All unicode (including emojis) are supported."},
			},
			Required: []string{"section_name", "old_content", "new_content"},
		},
	}, []string{"section_name", "old_content", "new_content"}, newCoreMemoryReplace)

	Register(SetBase, true, Definition{
		Name:        "conversation_search",
		Description: "Search prior conversation history with the user you last conversed with using case-insensitive string matching.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]*Property{
				"query": {Type: "string", Description: "String to search for."},
				"page":  {Type: "integer", Description: "Allows you to page through results. Only use on a follow-up query. Defaults to 0 (first page)."},
			},
			Required: []string{"query"},
		},
	}, []string{"query", "page"}, newConversationSearch)

	Register(SetBase, true, Definition{
		Name:        "conversation_search_date",
		Description: "Search prior conversation history with the user you last conversed with using a date range.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]*Property{
				"start_date": {Type: "string", Description: "Start of the date range to search, in the format 'YYYY-MM-DD'."},
				"end_date":   {Type: "string", Description: "End of the date range to search, in the format 'YYYY-MM-DD'."},
				"page":       {Type: "integer", Description: "Allows you to page through results. Only use on a follow-up query. Defaults to 0 (first page)."},
			},
			Required: []string{"start_date", "end_date"},
		},
	}, []string{"start_date", "end_date", "page"}, newConversationSearchDate)

	Register(SetBase, true, Definition{
		Name:        "archival_memory_insert",
		Description: "Add to archival memory. Make sure to phrase the memory contents such that it can be easily queried later.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]*Property{
				"content": {Type: "string", Description: "Content to write to the memory. All unicode (including emojis) are supported."},
			},
			Required: []string{"content"},
		},
	}, []string{"content"}, newArchivalMemoryInsert)

	Register(SetBase, true, Definition{
		Name:        "archival_memory_search",
		Description: "Search archival memory using semantic (embedding-based) search.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]*Property{
				"query": {Type: "string", Description: "String to search for."},
				"page":  {Type: "integer", Description: "Allows you to page through results. Only use on a follow-up query. Defaults to 0 (first page)."},
			},
			Required: []string{"query"},
		},
	}, []string{"query", "page"}, newArchivalMemorySearch)
}

func pageArg(args map[string]any) int {
	v, ok := args["page"]
	if !ok || v == nil {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return 0
	}
}

func numPages(total, count int) int {
	if count <= 0 {
		return 0
	}
	return int(math.Ceil(float64(total)/float64(count))) - 1
}

// --- send_message ---

type sendMessage struct{ out MessageSink }

func newSendMessage(d *Deps) (Tool, error) { return &sendMessage{out: d.Outbound}, nil }
func (t *sendMessage) Name() string        { return "send_message" }
func (t *sendMessage) Definition() Definition {
	e, _ := Lookup(t.Name())
	return e.Meta
}

func (t *sendMessage) Exec(_ context.Context, args map[string]any) (any, error) {
	msg, _ := args["message"].(string)
	if t.out != nil {
		t.out.AssistantMessage(msg)
	}
	return nil, nil
}

// --- core_memory_append / core_memory_replace ---

type coreMemoryAppend struct{ wc WorkingContextEditor }

func newCoreMemoryAppend(d *Deps) (Tool, error) { return &coreMemoryAppend{wc: d.WorkingContext}, nil }
func (t *coreMemoryAppend) Name() string        { return "core_memory_append" }
func (t *coreMemoryAppend) Definition() Definition {
	e, _ := Lookup(t.Name())
	return e.Meta
}

func (t *coreMemoryAppend) Exec(_ context.Context, args map[string]any) (any, error) {
	section, _ := args["section_name"].(string)
	content, _ := args["content"].(string)
	if err := t.wc.EditAppend(section, content); err != nil {
		return nil, err
	}
	return nil, nil
}

type coreMemoryReplace struct{ wc WorkingContextEditor }

func newCoreMemoryReplace(d *Deps) (Tool, error) {
	return &coreMemoryReplace{wc: d.WorkingContext}, nil
}
func (t *coreMemoryReplace) Name() string { return "core_memory_replace" }
func (t *coreMemoryReplace) Definition() Definition {
	e, _ := Lookup(t.Name())
	return e.Meta
}

func (t *coreMemoryReplace) Exec(_ context.Context, args map[string]any) (any, error) {
	section, _ := args["section_name"].(string)
	oldContent, _ := args["old_content"].(string)
	newContent, _ := args["new_content"].(string)
	if err := t.wc.EditReplace(section, oldContent, newContent); err != nil {
		return nil, err
	}
	return nil, nil
}

// --- conversation_search / conversation_search_date ---

type conversationSearch struct{ recall RecallSearcher }

func newConversationSearch(d *Deps) (Tool, error) { return &conversationSearch{recall: d.Recall}, nil }
func (t *conversationSearch) Name() string        { return "conversation_search" }
func (t *conversationSearch) Definition() Definition {
	e, _ := Lookup(t.Name())
	return e.Meta
}

func (t *conversationSearch) Exec(_ context.Context, args map[string]any) (any, error) {
	query, _ := args["query"].(string)
	page := pageArg(args)
	userID := currentUserID(t.recall)
	results, total := t.recall.TextSearch(query, userID, RetrievalPageSize, page*RetrievalPageSize)
	return formatRecallResults(results, total, page), nil
}

type conversationSearchDate struct{ recall RecallSearcher }

func newConversationSearchDate(d *Deps) (Tool, error) {
	return &conversationSearchDate{recall: d.Recall}, nil
}
func (t *conversationSearchDate) Name() string { return "conversation_search_date" }
func (t *conversationSearchDate) Definition() Definition {
	e, _ := Lookup(t.Name())
	return e.Meta
}

func (t *conversationSearchDate) Exec(_ context.Context, args map[string]any) (any, error) {
	start, _ := args["start_date"].(string)
	end, _ := args["end_date"].(string)
	page := pageArg(args)
	userID := currentUserID(t.recall)
	results, total := t.recall.DateSearch(start, end, userID, RetrievalPageSize, page*RetrievalPageSize)
	return formatRecallResults(results, total, page), nil
}

// currentUserID returns boundUserID, the user id the agent step loop
// sets through SetBoundUserID before dispatch; it is 0 if that was never
// called. The RecallSearcher argument is not used.
func currentUserID(_ RecallSearcher) int { return boundUserID }

// boundUserID is set by the agent step loop before each dispatch via
// SetBoundUserID; the FIFO step model operates on one user_id per step
// and resets it every call, so a package-level value scoped to the
// single global semaphore (pkg/runtime serializes all steps) is safe.
var boundUserID int //nolint:gochecknoglobals // serialized by the runtime's single semaphore, see pkg/runtime

// SetBoundUserID is called by the agent step loop at the start of each
// step (after WorkingContext.submit_used_human_id) so that
// conversation_search/archival tools resolve "the user last conversed
// with" without threading user_id through every Tool constructor.
func SetBoundUserID(userID int) { boundUserID = userID }

func formatRecallResults(results []SearchRecord, total, page int) string {
	if len(results) == 0 {
		return "No results found."
	}
	lines := make([]string, 0, len(results))
	for _, r := range results {
		lines = append(lines, fmt.Sprintf("timestamp: '%s', role: '%s' - %s", r.Timestamp, r.Role, r.Content))
	}
	b, _ := json.Marshal(lines)
	return fmt.Sprintf("Showing %d of %d results (page %d/%d): %s", len(results), total, page, numPages(total, RetrievalPageSize), string(b))
}

// --- archival_memory_insert / archival_memory_search ---

type archivalMemoryInsert struct{ archival ArchivalSearcher }

func newArchivalMemoryInsert(d *Deps) (Tool, error) {
	return &archivalMemoryInsert{archival: d.Archival}, nil
}
func (t *archivalMemoryInsert) Name() string { return "archival_memory_insert" }
func (t *archivalMemoryInsert) Definition() Definition {
	e, _ := Lookup(t.Name())
	return e.Meta
}

func (t *archivalMemoryInsert) Exec(ctx context.Context, args map[string]any) (any, error) {
	content, _ := args["content"].(string)
	if err := t.archival.Insert(ctx, boundUserID, content); err != nil {
		return nil, err
	}
	return nil, nil
}

type archivalMemorySearch struct{ archival ArchivalSearcher }

func newArchivalMemorySearch(d *Deps) (Tool, error) {
	return &archivalMemorySearch{archival: d.Archival}, nil
}
func (t *archivalMemorySearch) Name() string { return "archival_memory_search" }
func (t *archivalMemorySearch) Definition() Definition {
	e, _ := Lookup(t.Name())
	return e.Meta
}

func (t *archivalMemorySearch) Exec(ctx context.Context, args map[string]any) (any, error) {
	query, _ := args["query"].(string)
	page := pageArg(args)
	results, total := t.archival.Search(ctx, query, boundUserID, RetrievalPageSize, page*RetrievalPageSize)
	if len(results) == 0 {
		return "No results found.", nil
	}
	lines := make([]string, 0, len(results))
	for _, r := range results {
		lines = append(lines, fmt.Sprintf("timestamp: '%s', memory: '%s'", r.Timestamp, r.Content))
	}
	b, _ := json.Marshal(lines)
	return fmt.Sprintf("Showing %d of %d results (page %d/%d): %s", len(results), total, page, numPages(total, RetrievalPageSize), string(b)), nil
}
