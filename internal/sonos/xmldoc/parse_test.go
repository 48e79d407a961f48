package xmldoc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParse_StripsNamespacesAndDeclarations(t *testing.T) {
	payload := []byte(`<?xml version="1.0"?>
<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/" s:encodingStyle="enc">
  <s:Body>
    <u:GetVolumeResponse xmlns:u="urn:schemas-upnp-org:service:RenderingControl:1">
      <CurrentVolume>42</CurrentVolume>
    </u:GetVolumeResponse>
  </s:Body>
</s:Envelope>`)

	doc, err := Parse(payload)
	require.NoError(t, err)

	envelope, ok := doc.Get("Envelope")
	require.True(t, ok)
	require.Equal(t, KindMap, envelope.Kind)
	require.Equal(t, "enc", envelope.Text("encodingStyle"))
	_, hasXmlns := envelope.Get("s")
	require.False(t, hasXmlns)

	response, ok := doc.Find("GetVolumeResponse")
	require.True(t, ok)
	require.Equal(t, "42", response.Text("CurrentVolume"))
}

func TestParse_RepeatedChildrenBecomeList(t *testing.T) {
	doc, err := Parse([]byte(`<Groups><Group ID="a"/><Group ID="b"/><Group ID="c"/></Groups>`))
	require.NoError(t, err)

	groups, ok := doc.Find("Group")
	require.True(t, ok)
	require.Equal(t, KindList, groups.Kind)
	require.Len(t, groups.Items(), 3)
	require.Equal(t, "b", groups.Items()[1].Text("ID"))
}

func TestParse_SingleChildStaysMap(t *testing.T) {
	doc, err := Parse([]byte(`<Groups><Group ID="a"/></Groups>`))
	require.NoError(t, err)

	group, ok := doc.Find("Group")
	require.True(t, ok)
	require.Equal(t, KindMap, group.Kind)
	require.Len(t, group.Items(), 1)
}

func TestParse_MixedTextStoredUnderTextKey(t *testing.T) {
	doc, err := Parse([]byte(`<Name lang="en"> Kitchen </Name>`))
	require.NoError(t, err)

	name, ok := doc.Get("Name")
	require.True(t, ok)
	require.Equal(t, "Kitchen", name.Text(TextKey))
	require.Equal(t, "en", name.Text("lang"))
	require.Equal(t, "Kitchen", doc.Text("Name"))
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse([]byte(""))
	require.ErrorIs(t, err, ErrEmptyDocument)

	_, err = Parse([]byte("<a><b></a>"))
	require.Error(t, err)

	_, err = Parse([]byte("<a><b>"))
	require.Error(t, err)
}

func TestNode_KeysKeepInsertionOrder(t *testing.T) {
	node := NewMap()
	node.Set("z", NewScalar("1"))
	node.Set("a", NewScalar("2"))
	node.Set("z", NewScalar("3"))

	require.Equal(t, []string{"z", "a"}, node.Keys())
	require.Equal(t, "3", node.Text("z"))
}
