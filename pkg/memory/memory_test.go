package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"llmos/pkg/recall"
	"llmos/pkg/tokenregistry"
)

type fakeWC struct{ rendered string }

func (f fakeWC) Render() string { return f.rendered }

func newTestMemory(t *testing.T) *Memory {
	t.Helper()
	log, err := recall.New(t.TempDir())
	require.NoError(t, err)
	m, err := New(Config{
		Dir:            t.TempDir(),
		Model:          "gpt-4",
		Tokens:         tokenregistry.New(),
		Recall:         log,
		WorkingContext: fakeWC{rendered: "PERSONA: test"},
	})
	require.NoError(t, err)
	return m
}

func TestAppendIncrementsCountersAndPersists(t *testing.T) {
	m := newTestMemory(t)
	require.NoError(t, m.Append(Record{Kind: KindUser, UserID: 1, Role: "user", Content: "hi"}))

	total, inQueue := m.Counters()
	require.Equal(t, 1, total)
	require.Equal(t, 1, inQueue)
	require.Len(t, m.FIFO(), 1)
}

func TestReplaceFIFOKeepsTotalButResetsQueueCount(t *testing.T) {
	m := newTestMemory(t)
	require.NoError(t, m.Append(Record{Kind: KindUser, UserID: 1, Content: "a"}))
	require.NoError(t, m.Append(Record{Kind: KindUser, UserID: 1, Content: "b"}))

	require.NoError(t, m.ReplaceFIFO([]Record{{Kind: KindSystem, Content: "summary"}}))

	total, inQueue := m.Counters()
	require.Equal(t, 2, total)
	require.Equal(t, 1, inQueue)
}

func TestCollapseFIFOMergesConsecutiveNonAssistantRecords(t *testing.T) {
	fifo := []Record{
		{Kind: KindUser, UserID: 7, Content: "hello"},
		{Kind: KindTool, UserID: 7, Content: "Status: OK. Result: done"},
		{Kind: KindAssistant, Content: "got it"},
		{Kind: KindUser, UserID: 7, Content: "thanks"},
	}
	seq := collapseFIFO(fifo)
	require.Len(t, seq, 3)
	require.Equal(t, "assistant", seq[1].Role)
	require.Equal(t, "got it", seq[1].Content)
	require.Equal(t, "user", seq[0].Role)
	require.Contains(t, seq[0].Content, "❮USER MESSAGE")
	require.Contains(t, seq[0].Content, "❮TOOL MESSAGE")
	require.Equal(t, "user", seq[2].Role)
}

func TestMainCtxMessageSeqIncludesSystemMessageAndFIFO(t *testing.T) {
	m := newTestMemory(t)
	require.NoError(t, m.Append(Record{Kind: KindUser, UserID: 1, Content: "hello there"}))

	seq := m.MainCtxMessageSeq(context.Background(), "You are a helpful agent.")
	require.Len(t, seq, 2)
	require.Equal(t, "system", seq[0].Role)
	require.Contains(t, seq[0].Content, "You are a helpful agent.")
	require.Contains(t, seq[0].Content, "PERSONA: test")
	require.Equal(t, "user", seq[1].Role)
	require.Contains(t, seq[1].Content, "hello there")
}

func TestMainCtxMessageSeqNoTokensCountsNonZero(t *testing.T) {
	m := newTestMemory(t)
	require.NoError(t, m.Append(Record{Kind: KindUser, UserID: 1, Content: "hello there"}))

	n, err := m.MainCtxMessageSeqNoTokens(context.Background(), "You are a helpful agent.")
	require.NoError(t, err)
	require.Greater(t, n, 0)
}
