package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/liliang-cn/askdesk/internal/domain"
)

// DispatchRequest describes one outbound chat request
type DispatchRequest struct {
	ChatID  string
	Content string
	Model   string
	Files   []domain.Attachment
}

// Dispatcher issues chat requests to the backend chat endpoint
type Dispatcher struct {
	endpoint string
	client   *http.Client
	token    string
}

// DispatcherOption configures a Dispatcher
type DispatcherOption func(*Dispatcher)

// WithHTTPClient sets the HTTP client used for requests
func WithHTTPClient(client *http.Client) DispatcherOption {
	return func(d *Dispatcher) { d.client = client }
}

// WithAuthToken sends token as a bearer credential
func WithAuthToken(token string) DispatcherOption {
	return func(d *Dispatcher) { d.token = token }
}

// NewDispatcher creates a dispatcher for the given endpoint URL
func NewDispatcher(endpoint string, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{endpoint: endpoint, client: http.DefaultClient}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Endpoint returns the chat endpoint URL
func (d *Dispatcher) Endpoint() string {
	return d.endpoint
}

// Dispatch posts the request and returns the streaming response. The request
// is JSON encoded, or multipart when files are attached. A non-2xx status or
// a missing body is reported as *DispatchError and the body is closed.
func (d *Dispatcher) Dispatch(ctx context.Context, req DispatchRequest) (*http.Response, error) {
	if req.Model == "" {
		req.Model = domain.DefaultModel
	}

	var (
		body        io.Reader
		contentType string
		err         error
	)
	if len(req.Files) > 0 {
		body, contentType, err = encodeMultipart(req)
	} else {
		body, contentType, err = encodeJSON(req)
	}
	if err != nil {
		return nil, &DispatchError{Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, body)
	if err != nil {
		return nil, &DispatchError{Err: err}
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "text/event-stream")
	if d.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+d.token)
	}

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, &DispatchError{Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &DispatchError{StatusCode: resp.StatusCode}
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		if resp.Body != nil {
			resp.Body.Close()
		}
		return nil, &DispatchError{Err: errors.New("no response body for streaming")}
	}
	return resp, nil
}

func outboundMessages(content string) []domain.CompletionMessage {
	return []domain.CompletionMessage{{Role: domain.RoleUser, Content: content}}
}

func encodeJSON(req DispatchRequest) (io.Reader, string, error) {
	data, err := json.Marshal(domain.CompletionRequest{
		Messages: outboundMessages(req.Content),
		Model:    req.Model,
		ChatID:   req.ChatID,
		Stream:   true,
	})
	if err != nil {
		return nil, "", err
	}
	return bytes.NewReader(data), "application/json", nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func encodeMultipart(req DispatchRequest) (io.Reader, string, error) {
	messages, err := json.Marshal(outboundMessages(req.Content))
	if err != nil {
		return nil, "", err
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fields := [][2]string{
		{"messages", string(messages)},
		{"model", req.Model},
		{"chatId", req.ChatID},
		{"stream", "true"},
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", err
		}
	}

	for _, file := range req.Files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition",
			fmt.Sprintf(`form-data; name="files"; filename="%s"`, quoteEscaper.Replace(file.Name)))
		contentType := file.Type
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		h.Set("Content-Type", contentType)

		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(file.Data); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
