package stanza

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeXML(t *testing.T) {
	in := `<message xmlns="jabber:client" to="derp@own.dev" type="chat" id="x1">` +
		`<body>hello</body><request xmlns="urn:xmpp:receipts"/></message>`
	st, err := DecodeXML(strings.NewReader(in))
	require.NoError(t, err)

	assert.Equal(t, "{jabber:client}message", st.Name)
	assert.Equal(t, map[string]string{"to": "derp@own.dev", "type": "chat", "id": "x1"}, st.Attributes)
	assert.Equal(t, []Element{
		{Key: "{jabber:client}body", Value: "hello"},
		{Key: "{urn:xmpp:receipts}request", Value: ""},
	}, st.Value)
}

func TestDecodeXMLMalformed(t *testing.T) {
	for _, in := range []string{"", "<message>", "<message></oops>"} {
		_, err := DecodeXML(strings.NewReader(in))
		assert.ErrorIs(t, err, ErrMalformed, in)
	}
}

func TestElementNullValue(t *testing.T) {
	var st Stanza
	err := json.Unmarshal([]byte(`{"attributes":{"to":"a@b"},"value":[{"key":"{urn:xmpp:receipts}request","value":null}]}`), &st)
	require.NoError(t, err)
	require.Len(t, st.Value, 1)
	assert.Equal(t, "", st.Value[0].Value)
	assert.Equal(t, "a@b", st.Attr("to"))
}
