package agent

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"

	"github.com/cloudwego/eino/compose"
	"github.com/tidwall/gjson"

	"github.com/zhouzirui/tecnoaigent/backend/internal/config"
)

const maxReplyBytes = 8 << 20

// Client talks to the remote analytics agent: the query endpoint and the transcription endpoint.
type Client struct {
	cfg        config.AgentConfig
	httpClient *http.Client
	queryURL   *url.URL
	assetBase  *url.URL
	chain      compose.Runnable[Query, Reply]
}

// NewClient validates the endpoints and compiles the query pipeline.
func NewClient(ctx context.Context, cfg config.AgentConfig, httpClient *http.Client) (*Client, error) {
	queryURL, err := url.Parse(cfg.QueryURL)
	if err != nil {
		return nil, fmt.Errorf("parse agent query url: %w", err)
	}

	var assetBase *url.URL
	if cfg.AssetBaseURL != "" {
		if assetBase, err = url.Parse(cfg.AssetBaseURL); err != nil {
			return nil, fmt.Errorf("parse agent asset base url: %w", err)
		}
	}

	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	c := &Client{
		cfg:        cfg,
		httpClient: httpClient,
		queryURL:   queryURL,
		assetBase:  assetBase,
	}

	chain := compose.NewChain[Query, Reply]()
	chain.AppendLambda(compose.InvokableLambda(c.Fetch))
	chain.AppendLambda(compose.InvokableLambda(c.normalize))

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile agent query chain: %w", err)
	}
	c.chain = runnable

	return c, nil
}

// Ask sends one query and returns the normalized reply.
func (c *Client) Ask(ctx context.Context, q Query) (Reply, error) {
	reply, err := c.chain.Invoke(ctx, q)
	if err != nil {
		return Reply{}, fmt.Errorf("agent query failed: %w", err)
	}

	log.Printf("[agent] reply for user=%s model=%s length=%d audio=%t image=%t",
		q.UserID, q.ModelID, len(reply.Text), reply.AudioURL != "", reply.ImageURL != "")
	return reply, nil
}

// Fetch issues the query GET and returns the raw answer whatever its status.
func (c *Client) Fetch(ctx context.Context, q Query) (*RawReply, error) {
	params := url.Values{}
	params.Set("idagente", q.UserID)
	params.Set("msg", q.Message)
	params.Set("view_name", q.ModelID)
	return c.Forward(ctx, params)
}

// Forward sends an arbitrary query string to the query endpoint.
func (c *Client) Forward(ctx context.Context, params url.Values) (*RawReply, error) {
	target := *c.queryURL
	target.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build agent request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call agent: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return nil, fmt.Errorf("read agent reply: %w", err)
	}

	return &RawReply{
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

func (c *Client) normalize(_ context.Context, raw *RawReply) (Reply, error) {
	return NormalizeReply(c.cfg.ReplyContract, raw, c.assetBase)
}

// Transcribe uploads a clip as the multipart field "audio" and returns the transcript.
func (c *Client) Transcribe(ctx context.Context, req *TranscriptionRequest) (*TranscriptionResponse, error) {
	if req == nil || req.Audio == nil {
		return nil, ErrEmptyAudio
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="audio"; filename="%s"`, escapeQuotes(filenameOrDefault(req.Filename))))
	contentType := req.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("create audio part: %w", err)
	}
	written, err := io.Copy(part, io.LimitReader(req.Audio, c.cfg.MaxClipBytes+1))
	if err != nil {
		return nil, fmt.Errorf("copy audio: %w", err)
	}
	if written == 0 {
		return nil, ErrEmptyAudio
	}
	if written > c.cfg.MaxClipBytes {
		return nil, fmt.Errorf("audio clip exceeds %d bytes", c.cfg.MaxClipBytes)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TranscribeURL, body)
	if err != nil {
		return nil, fmt.Errorf("build transcription request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call transcription endpoint: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return nil, fmt.Errorf("read transcription reply: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(resp.StatusCode, payload)
	}

	if !gjson.ValidBytes(payload) {
		return nil, fmt.Errorf("%w: transcription body is not JSON", ErrMalformedReply)
	}
	text := gjson.GetBytes(payload, "transcription")
	if text.Type != gjson.String {
		return nil, fmt.Errorf("%w: transcription missing", ErrMalformedReply)
	}

	log.Printf("[agent] transcribed session=%s bytes=%d chars=%d", req.SessionID, written, len(text.String()))
	return &TranscriptionResponse{SessionID: req.SessionID, Text: text.String(), Body: payload}, nil
}

func filenameOrDefault(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "recording.webm"
	}
	return name
}

func escapeQuotes(s string) string {
	return strings.NewReplacer("\\", "\\\\", `"`, "\\\"").Replace(s)
}
