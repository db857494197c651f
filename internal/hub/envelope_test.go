package hub

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/valyala/fastjson"
)

func TestParseEnvelopePublicText(t *testing.T) {
	t.Parallel()

	v := fastjson.MustParse(`{"receiver_id":null,"group_id":null,"content_type":"text","content":"hello"}`)

	env, err := parseEnvelope(v)
	require.NoError(t, err)
	require.Nil(t, env.ReceiverID)
	require.Nil(t, env.GroupID)
	require.Equal(t, "text", env.ContentType)
	require.Equal(t, "hello", env.Content)
}

func TestParseEnvelopeGroupImage(t *testing.T) {
	t.Parallel()

	v := fastjson.MustParse(`{"group_id":5,"content_type":"image","content":"/uploads/a.png"}`)

	env, err := parseEnvelope(v)
	require.NoError(t, err)
	require.Nil(t, env.ReceiverID)
	require.Equal(t, int64(5), *env.GroupID)
	require.Equal(t, "image", env.ContentType)
}

func TestParseEnvelopeMissingData(t *testing.T) {
	t.Parallel()

	_, err := parseEnvelope(nil)
	require.EqualError(t, err, `Missing field "data"`)
}

func TestParseEnvelopeUnknownContentType(t *testing.T) {
	t.Parallel()

	v := fastjson.MustParse(`{"content_type":"sticker","content":"x"}`)

	_, err := parseEnvelope(v)
	require.EqualError(t, err, `Field "content_type" must be one of "text", "image", "video", "file"`)
}

func TestParseEnvelopeMissingContent(t *testing.T) {
	t.Parallel()

	v := fastjson.MustParse(`{"content_type":"text"}`)

	_, err := parseEnvelope(v)
	require.EqualError(t, err, `Field "content" must be a string`)
}

func TestParseEnvelopeBlankContent(t *testing.T) {
	t.Parallel()

	v := fastjson.MustParse(`{"content_type":"text","content":""}`)

	_, err := parseEnvelope(v)
	require.EqualError(t, err, `Field "content" must have non-zero length`)
}

func TestParseEnvelopeReceiverNotInteger(t *testing.T) {
	t.Parallel()

	v := fastjson.MustParse(`{"receiver_id":"two","content_type":"text","content":"x"}`)

	_, err := parseEnvelope(v)
	require.EqualError(t, err, `Field "receiver_id" must be a 64-bit integer value`)
}

func TestParseEnvelopeGroupNotPositive(t *testing.T) {
	t.Parallel()

	v := fastjson.MustParse(`{"group_id":0,"content_type":"text","content":"x"}`)

	_, err := parseEnvelope(v)
	require.EqualError(t, err, `Field "group_id" must be a valid id greater than zero`)
}
