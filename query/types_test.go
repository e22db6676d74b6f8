package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOutputMessage(t *testing.T) {
	tests := []struct {
		name  string
		input string
		check func(t *testing.T, m *OutputMessage)
	}{
		{
			name:  "init",
			input: `{"type":"system","subtype":"init","session_id":"s1","cwd":"/w","tools":["Read"]}`,
			check: func(t *testing.T, m *OutputMessage) {
				assert.True(t, m.IsInit())
				require.NotNil(t, m.Init)
				assert.Equal(t, "/w", m.Init.CWD)
				assert.Equal(t, []string{"Read"}, m.Init.Tools)
			},
		},
		{
			name:  "assistant text",
			input: `{"type":"assistant","message":{"content":[{"type":"text","text":"a"},{"type":"tool_use","name":"Bash"},{"type":"text","text":"b"}]}}`,
			check: func(t *testing.T, m *OutputMessage) {
				assert.True(t, m.IsAssistant())
				assert.Equal(t, "ab", m.GetText())
			},
		},
		{
			name:  "user tool result",
			input: `{"type":"user","message":{"role":"user","content":[{"type":"tool_result","tool_use_id":"t1","content":"ok"}]}}`,
			check: func(t *testing.T, m *OutputMessage) {
				require.NotNil(t, m.User)
				assert.True(t, m.User.HasToolResult())
			},
		},
		{
			name:  "user echo",
			input: `{"type":"user","message":{"role":"user","content":[{"type":"text","text":"hi"}]}}`,
			check: func(t *testing.T, m *OutputMessage) {
				require.NotNil(t, m.User)
				assert.False(t, m.User.HasToolResult())
			},
		},
		{
			name:  "error result",
			input: `{"type":"result","subtype":"error_max_turns","result":"stopped"}`,
			check: func(t *testing.T, m *OutputMessage) {
				assert.True(t, m.IsError())
				assert.Equal(t, "stopped", m.GetText())
			},
		},
		{
			name:  "control response",
			input: `{"type":"control_response","response":{}}`,
			check: func(t *testing.T, m *OutputMessage) {
				assert.True(t, m.IsControl())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := ParseOutputMessage([]byte(tt.input))
			require.NoError(t, err)
			assert.JSONEq(t, tt.input, string(m.Raw))
			tt.check(t, m)
		})
	}
}

func TestParseOutputMessage_Invalid(t *testing.T) {
	_, err := ParseOutputMessage([]byte("not json"))
	assert.Error(t, err)
}

func TestParseOutputMessage_CopiesInput(t *testing.T) {
	buf := []byte(`{"type":"assistant"}`)
	m, err := ParseOutputMessage(buf)
	require.NoError(t, err)
	buf[2] = 'X'
	assert.Equal(t, `{"type":"assistant"}`, string(m.Raw))
}

func TestNewUserMessage(t *testing.T) {
	m := NewUserMessage(`say "hi"`)
	assert.Equal(t, "user", m.Type)
	assert.Equal(t, "user", m.Message.Role)
	assert.JSONEq(t, `"say \"hi\""`, string(m.Message.Content))

	blocks := m.Message.Blocks()
	require.Len(t, blocks, 1)
	assert.Equal(t, `say "hi"`, blocks[0].Text)
}

func TestModelUsage_Used(t *testing.T) {
	u := ModelUsage{InputTokens: 1, OutputTokens: 2, CacheReadInputTokens: 3, CacheCreationInputTokens: 4}
	assert.Equal(t, 10, u.Used())
}
