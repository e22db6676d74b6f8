package frame

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math/rand"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleStream = `{"type":"system","subtype":"init","session_id":"abc-123","model":"sonnet"}
{"type":"assistant","session_id":"abc-123","message":{"content":[{"type":"text","text":"Hello\nworld"}]}}
{"type":"user","session_id":"abc-123","message":{"content":[{"type":"tool_result","content":"ok"}]}}
{"type":"result","subtype":"success","session_id":"abc-123","result":"done"}
`

func decodeChunks(chunks [][]byte) []Message {
	d := NewDecoder()
	var out []Message
	for _, c := range chunks {
		out = append(out, d.Feed(c)...)
	}
	return append(out, d.Flush()...)
}

func TestDecoder_SingleChunk(t *testing.T) {
	msgs := decodeChunks([][]byte{[]byte(sampleStream)})
	require.Len(t, msgs, 4)

	assert.Equal(t, KindSystemInit, msgs[0].Kind)
	assert.Equal(t, "abc-123", msgs[0].SessionID)
	assert.Equal(t, KindAssistant, msgs[1].Kind)
	assert.Equal(t, KindUser, msgs[2].Kind)
	assert.Equal(t, KindResult, msgs[3].Kind)
	assert.Equal(t, "success", msgs[3].Subtype)

	var body map[string]any
	require.NoError(t, json.Unmarshal(msgs[1].Raw, &body))
	assert.Equal(t, "assistant", body["type"])
}

func TestDecoder_EverySplitPoint(t *testing.T) {
	want := decodeChunks([][]byte{[]byte(sampleStream)})
	data := []byte(sampleStream)

	for i := 0; i <= len(data); i++ {
		got := decodeChunks([][]byte{data[:i], data[i:]})
		require.Equal(t, want, got, "split at %d", i)
	}
}

func TestDecoder_RandomChunking(t *testing.T) {
	want := decodeChunks([][]byte{[]byte(sampleStream)})
	data := []byte(sampleStream)
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 200; round++ {
		var chunks [][]byte
		for rest := data; len(rest) > 0; {
			n := 1 + rng.Intn(17)
			if n > len(rest) {
				n = len(rest)
			}
			chunks = append(chunks, rest[:n])
			rest = rest[n:]
		}
		assert.Equal(t, want, decodeChunks(chunks), "round %d", round)
	}
}

func TestDecoder_ByteAtATime(t *testing.T) {
	want := decodeChunks([][]byte{[]byte(sampleStream)})
	var chunks [][]byte
	for i := range len(sampleStream) {
		chunks = append(chunks, []byte{sampleStream[i]})
	}
	assert.Equal(t, want, decodeChunks(chunks))
}

func TestDecoder_MalformedLineIsNotFatal(t *testing.T) {
	input := "{\"type\":\"assistant\"}\nnot json at all\n{\"type\":\"result\"}\n"
	msgs := decodeChunks([][]byte{[]byte(input)})
	require.Len(t, msgs, 3)

	assert.Equal(t, KindAssistant, msgs[0].Kind)
	assert.Equal(t, KindRawUnparsed, msgs[1].Kind)
	assert.Equal(t, "not json at all", msgs[1].Text)
	assert.Nil(t, msgs[1].Raw)
	assert.Equal(t, KindResult, msgs[2].Kind)
}

func TestDecoder_HoldsPartialLine(t *testing.T) {
	d := NewDecoder()
	assert.Empty(t, d.Feed([]byte(`{"type":"assis`)))
	assert.Equal(t, 14, d.Pending())

	msgs := d.Feed([]byte("tant\"}\n"))
	require.Len(t, msgs, 1)
	assert.Equal(t, KindAssistant, msgs[0].Kind)
	assert.Zero(t, d.Pending())
}

func TestDecoder_FlushTrailingLine(t *testing.T) {
	d := NewDecoder()
	assert.Empty(t, d.Feed([]byte(`{"type":"result"}`)))

	msgs := d.Flush()
	require.Len(t, msgs, 1)
	assert.Equal(t, KindResult, msgs[0].Kind)
	assert.Empty(t, d.Flush())
}

func TestDecoder_CRLFAndBlankLines(t *testing.T) {
	msgs := decodeChunks([][]byte{[]byte("\r\n{\"type\":\"assistant\"}\r\n\n   \n")})
	require.Len(t, msgs, 1)
	assert.Equal(t, KindAssistant, msgs[0].Kind)
}

func TestDecoder_LineCap(t *testing.T) {
	d := NewDecoder(WithMaxLineBytes(8))

	msgs := d.Feed([]byte("0123456789abcdef"))
	require.Len(t, msgs, 1)
	assert.Equal(t, KindRawUnparsed, msgs[0].Kind)
	assert.Equal(t, "01234567", msgs[0].Text)

	// The remainder of the overlong line is discarded; decoding resumes after it.
	msgs = d.Feed([]byte("ghij\n{\"a\":1}\n"))
	require.Len(t, msgs, 1)
	assert.Equal(t, KindOther, msgs[0].Kind)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		line string
		kind Kind
	}{
		{`{"type":"system","subtype":"init","session_id":"s"}`, KindSystemInit},
		{`{"type":"system","subtype":"hook_response"}`, KindSystem},
		{`{"type":"assistant"}`, KindAssistant},
		{`{"type":"user"}`, KindUser},
		{`{"type":"result","subtype":"success"}`, KindResult},
		{`{"type":"error","error":"boom"}`, KindError},
		{`{"type":"stream_event"}`, KindOther},
		{`null`, KindRawUnparsed},
		{`[1,2]`, KindRawUnparsed},
		{`42`, KindRawUnparsed},
		{`{broken`, KindRawUnparsed},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			assert.Equal(t, tt.kind, Classify([]byte(tt.line)).Kind)
		})
	}
}

func TestPassthrough(t *testing.T) {
	raw := json.RawMessage(`{"type":"assistant","session_id":"xyz","message":{}}`)
	msg := Passthrough(raw)

	assert.Equal(t, KindAssistant, msg.Kind)
	assert.Equal(t, "xyz", msg.SessionID)
	assert.JSONEq(t, string(raw), string(msg.Raw))
}

func TestAll_Lazy(t *testing.T) {
	r := iotest.OneByteReader(strings.NewReader(sampleStream))

	var kinds []Kind
	for msg, err := range All(r) {
		require.NoError(t, err)
		kinds = append(kinds, msg.Kind)
		if msg.Kind == KindAssistant {
			break
		}
	}
	assert.Equal(t, []Kind{KindSystemInit, KindAssistant}, kinds)
}

func TestAll_ReadError(t *testing.T) {
	boom := errors.New("boom")
	r := io.MultiReader(strings.NewReader("{\"type\":\"assistant\"}\n"), iotest.ErrReader(boom))

	var msgs []Message
	var gotErr error
	for msg, err := range All(r) {
		if err != nil {
			gotErr = err
			continue
		}
		msgs = append(msgs, msg)
	}
	assert.Len(t, msgs, 1)
	assert.ErrorIs(t, gotErr, boom)
}

func TestPump(t *testing.T) {
	out := make(chan Message, 10)
	require.NoError(t, Pump(context.Background(), strings.NewReader(sampleStream), out))
	close(out)

	var n int
	for range out {
		n++
	}
	assert.Equal(t, 4, n)
}

func TestPump_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := make(chan Message) // unbuffered, nobody reading
	err := Pump(ctx, strings.NewReader(sampleStream), out)
	assert.ErrorIs(t, err, context.Canceled)
}
