package functions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeWorkingContext struct {
	appended []string
	replaced bool
}

func (f *fakeWorkingContext) EditAppend(section, content string) error {
	f.appended = append(f.appended, section+":"+content)
	return nil
}

func (f *fakeWorkingContext) EditReplace(section, oldContent, newContent string) error {
	f.replaced = true
	return nil
}

func (f *fakeWorkingContext) LastHumanID() (int, bool) { return 1, true }

type fakeOutbound struct{ messages []string }

func (f *fakeOutbound) AssistantMessage(text string) { f.messages = append(f.messages, text) }

type fakeRecall struct{}

func (fakeRecall) TextSearch(query string, forUserID, count, offset int) ([]SearchRecord, int) {
	return []SearchRecord{{Timestamp: "2026-01-01", Role: "user", Content: "hello " + query}}, 1
}

func (fakeRecall) DateSearch(start, end string, forUserID, count, offset int) ([]SearchRecord, int) {
	return nil, 0
}

func resetRegistryForTest(t *testing.T) {
	t.Helper()
	Reset()
	RegisterBase()
}

func TestSendMessageDeliversToOutbound(t *testing.T) {
	resetRegistryForTest(t)
	out := &fakeOutbound{}
	p := NewProvider(&Deps{Outbound: out})
	tool, err := p.Get("send_message")
	require.NoError(t, err)

	_, err = tool.Exec(context.Background(), map[string]any{"message": "hi there"})
	require.NoError(t, err)
	require.Equal(t, []string{"hi there"}, out.messages)
}

func TestCoreMemoryAppendDelegatesToWorkingContext(t *testing.T) {
	resetRegistryForTest(t)
	wc := &fakeWorkingContext{}
	p := NewProvider(&Deps{WorkingContext: wc})
	tool, err := p.Get("core_memory_append")
	require.NoError(t, err)

	_, err = tool.Exec(context.Background(), map[string]any{"section_name": "persona", "content": "likes tea"})
	require.NoError(t, err)
	require.Equal(t, []string{"persona:likes tea"}, wc.appended)
}

func TestConversationSearchFormatsResults(t *testing.T) {
	resetRegistryForTest(t)
	p := NewProvider(&Deps{Recall: fakeRecall{}})
	tool, err := p.Get("conversation_search")
	require.NoError(t, err)

	result, err := tool.Exec(context.Background(), map[string]any{"query": "colour"})
	require.NoError(t, err)
	require.Contains(t, result.(string), "Showing 1 of 1 results")
	require.Contains(t, result.(string), "hello colour")
}

func TestRegisterRejectsDuplicateNames(t *testing.T) {
	Reset()
	RegisterBase()
	require.Panics(t, func() {
		Register(SetBase, true, Definition{Name: "send_message"}, nil, newSendMessage)
	})
}

func TestRegisterRejectsSchemaMismatch(t *testing.T) {
	Reset()
	require.Panics(t, func() {
		Register(SetBase, true, Definition{
			Name: "bad_tool",
			InputSchema: InputSchema{
				Properties: map[string]*Property{"extra": {Type: "string"}},
			},
		}, []string{"other"}, newSendMessage)
	})
}
