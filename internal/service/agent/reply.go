package agent

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"

	"github.com/zhouzirui/tecnoaigent/backend/internal/config"
)

const maxErrorSnippet = 200

// NormalizeReply turns a raw query answer into a Reply according to the declared contract.
// The json contract expects {responseText, audioUrl?, imageUrl?}; the text contract takes the
// body verbatim. Relative media references are resolved against assetBase when it is set.
func NormalizeReply(contract string, raw *RawReply, assetBase *url.URL) (Reply, error) {
	if raw == nil {
		return Reply{}, ErrMalformedReply
	}
	if raw.Status < 200 || raw.Status > 299 {
		return Reply{}, statusError(raw.Status, raw.Body)
	}

	switch contract {
	case config.ReplyContractText:
		return Reply{Text: string(raw.Body)}, nil
	case config.ReplyContractJSON, "":
		return normalizeJSON(raw.Body, assetBase)
	default:
		return Reply{}, fmt.Errorf("unknown reply contract %q", contract)
	}
}

func normalizeJSON(body []byte, assetBase *url.URL) (Reply, error) {
	if !gjson.ValidBytes(body) {
		return Reply{}, fmt.Errorf("%w: body is not JSON", ErrMalformedReply)
	}

	text := gjson.GetBytes(body, "responseText")
	if text.Type != gjson.String {
		return Reply{}, fmt.Errorf("%w: responseText missing", ErrMalformedReply)
	}

	return Reply{
		Text:     text.String(),
		AudioURL: mediaRef(gjson.GetBytes(body, "audioUrl"), assetBase),
		ImageURL: mediaRef(gjson.GetBytes(body, "imageUrl"), assetBase),
	}, nil
}

func mediaRef(value gjson.Result, assetBase *url.URL) string {
	if value.Type != gjson.String {
		return ""
	}
	ref := strings.TrimSpace(value.String())
	if ref == "" || assetBase == nil {
		return ref
	}

	parsed, err := url.Parse(ref)
	if err != nil || parsed.IsAbs() {
		return ref
	}
	return assetBase.ResolveReference(parsed).String()
}

func statusError(status int, body []byte) *StatusError {
	if gjson.ValidBytes(body) {
		if msg := gjson.GetBytes(body, "error"); msg.Type == gjson.String {
			return &StatusError{Status: status, Message: msg.String(), Reported: true}
		}
	}

	snippet := strings.TrimSpace(string(body))
	if len(snippet) > maxErrorSnippet {
		cut := maxErrorSnippet
		for cut > 0 && !utf8.RuneStart(snippet[cut]) {
			cut--
		}
		snippet = snippet[:cut]
	}
	return &StatusError{Status: status, Message: snippet}
}
