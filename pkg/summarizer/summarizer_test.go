package summarizer

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llmos/pkg/llmhost"
	"llmos/pkg/memory"
	"llmos/pkg/recall"
	"llmos/pkg/tokenregistry"
)

type fakeWC struct{}

func (fakeWC) Render() string { return "PERSONA: test" }

type fakeHost struct {
	reply    string
	lastReq  llmhost.Request
	callErr  error
}

func (h *fakeHost) Chat(_ context.Context, req llmhost.Request) (llmhost.Response, error) {
	h.lastReq = req
	if h.callErr != nil {
		return llmhost.Response{}, h.callErr
	}
	return llmhost.Response{Content: h.reply}, nil
}

func newTestMemory(t *testing.T) *memory.Memory {
	t.Helper()
	log, err := recall.New(t.TempDir())
	require.NoError(t, err)
	m, err := memory.New(memory.Config{
		Dir:            t.TempDir(),
		Model:          "gpt-4",
		Tokens:         tokenregistry.New(),
		Recall:         log,
		WorkingContext: fakeWC{},
	})
	require.NoError(t, err)
	return m
}

func fillWithFiller(t *testing.T, m *memory.Memory, n int, wordsPerMessage int) {
	t.Helper()
	filler := strings.Repeat("lorem ipsum dolor sit amet consectetur adipiscing elit ", wordsPerMessage)
	for i := 0; i < n; i++ {
		kind := memory.KindUser
		if i%2 == 1 {
			kind = memory.KindAssistant
		}
		content := filler
		if kind == memory.KindAssistant {
			content = `{"emotions":[["curious",5]],"thoughts":["thinking about ` + filler + `"],"function_call":{"name":"send_message","arguments":{"message":"hi"}}}`
		}
		require.NoError(t, m.Append(memory.Record{Kind: kind, UserID: 1, Role: "user", Content: content}))
	}
}

func TestRun_NoOpWhenQueueAtOrBelowLastN(t *testing.T) {
	m := newTestMemory(t)
	require.NoError(t, m.Append(memory.Record{Kind: memory.KindUser, UserID: 1, Content: "hi"}))

	host := &fakeHost{reply: "summary"}
	result, err := Run(context.Background(), m, host, "gpt-4", 8192, "instructions", Budget{
		TruncationFrac: 0.5, WarnFrac: 0.95, LastNMessages: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, Result{}, result)
	assert.Len(t, m.FIFO(), 1)
}

func TestRun_SummarizesOldestMessagesAndPrependsSummary(t *testing.T) {
	m := newTestMemory(t)
	fillWithFiller(t, m, 40, 40)

	host := &fakeHost{reply: "the user and I discussed several topics"}
	result, err := Run(context.Background(), m, host, "gpt-4", 8192, "instructions", Budget{
		TruncationFrac: 0.05, WarnFrac: 0.1, LastNMessages: 3,
	})
	require.NoError(t, err)
	require.Greater(t, result.PoppedCount, 0)

	fifo := m.FIFO()
	require.NotEmpty(t, fifo)
	assert.Equal(t, memory.KindSystem, fifo[0].Kind)
	assert.Contains(t, fifo[0].Content, "have been hidden from view")
	assert.Contains(t, fifo[0].Content, "the user and I discussed several topics")

	total, inQueue := m.Counters()
	assert.Equal(t, 40, total)
	assert.Equal(t, len(fifo), inQueue)
	assert.Less(t, inQueue, total)
}

func TestRun_PreservesLastNMessages(t *testing.T) {
	m := newTestMemory(t)
	fillWithFiller(t, m, 40, 40)

	host := &fakeHost{reply: "summary text"}
	_, err := Run(context.Background(), m, host, "gpt-4", 8192, "instructions", Budget{
		TruncationFrac: 0.05, WarnFrac: 0.1, LastNMessages: 3,
	})
	require.NoError(t, err)

	fifo := m.FIFO()
	// at least LastNMessages non-summary records must remain
	nonSummary := 0
	for _, r := range fifo {
		if r.Kind != memory.KindSystem {
			nonSummary++
		}
	}
	assert.GreaterOrEqual(t, nonSummary, 3)
}

func TestBuildTranscript_FormatsEachKind(t *testing.T) {
	records := []memory.Record{
		{Kind: memory.KindSystem, Content: "system note"},
		{Kind: memory.KindTool, UserID: 7, Content: "tool output"},
		{Kind: memory.KindUser, UserID: 7, Content: "hello"},
		{Kind: memory.KindAssistant, UserID: 7, Content: `{"thoughts":["pondering"],"function_call":{"name":"send_message"}}`},
		{Kind: memory.KindAssistant, UserID: 7, Content: "not json"},
	}
	transcript := buildTranscript(records)

	assert.Contains(t, transcript, "❮SYSTEM MESSAGE❯ system note")
	assert.Contains(t, transcript, "❮TOOL MESSAGE for conversation with user with id '7'❯ tool output")
	assert.Contains(t, transcript, "❮USER MESSAGE for conversation with user with id '7'❯ hello")
	assert.Contains(t, transcript, "❮ASSISTANT MONOLOGUE for conversation with user with id '7'❯ pondering")
	assert.Contains(t, transcript, "❮TOOL CALL for conversation with user with id '7'❯")
	assert.Contains(t, transcript, "❮ERRONEOUS ASSISTANT MESSAGE for conversation with user with id '7'❯ not json")
}

func TestRun_HostErrorPropagates(t *testing.T) {
	m := newTestMemory(t)
	fillWithFiller(t, m, 40, 40)

	host := &fakeHost{callErr: assertError{"boom"}}
	_, err := Run(context.Background(), m, host, "gpt-4", 8192, "instructions", Budget{
		TruncationFrac: 0.05, WarnFrac: 0.1, LastNMessages: 3,
	})
	require.Error(t, err)
}

type assertError struct{ msg string }

func (e assertError) Error() string { return e.msg }
