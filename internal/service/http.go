package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cast"
	"mqw.szuro.net/pkg/item"
	"mqw.szuro.net/pkg/plugin"
)

// HTTP sends the message with method addrs[0] to URL addrs[1]. Request
// parameters come from the "params" option; a value "@field" takes the
// item field (message, title, topic, payload, priority), other values are
// formatted against the item data. Without params the message is the body.
type HTTP struct {
	plugin.BaseService
	client *http.Client
}

func (h *HTTP) Reentrant() bool { return true }

func (h *HTTP) Initialize(name string, options map[string]any) error {
	if err := h.BaseService.Initialize(name, options); err != nil {
		return err
	}
	h.client = &http.Client{}
	return nil
}

func itemField(it *item.Item, name string) string {
	switch name {
	case "message":
		return it.Text()
	case "title":
		return it.Title
	case "topic":
		return it.Topic
	case "payload":
		return string(it.Payload)
	case "priority":
		return strconv.Itoa(it.Priority)
	}
	if v, ok := it.Data[name]; ok {
		return cast.ToString(v)
	}
	return "NOP"
}

func (h *HTTP) params(it *item.Item) (map[string]string, error) {
	raw, ok := it.Config["params"]
	if !ok || raw == nil {
		return nil, nil
	}
	in, err := cast.ToStringMapStringE(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: params: %v", plugin.ErrInvalidAddress, err)
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		if strings.HasPrefix(v, "@") {
			out[k] = itemField(it, v[1:])
			continue
		}
		if out[k], err = interpolate(it, v); err != nil {
			return nil, fmt.Errorf("parameter %s cannot be formatted: %w", k, err)
		}
	}
	return out, nil
}

func (h *HTTP) Deliver(ctx context.Context, it *item.Item) error {
	method, err := it.Addr(0)
	if err != nil {
		return err
	}
	method = strings.ToUpper(method)
	rawURL, err := it.Addr(1)
	if err != nil {
		return err
	}
	if target, err := interpolate(it, rawURL); err == nil {
		rawURL = target
	}
	params, err := h.params(it)
	if err != nil {
		return err
	}

	var body io.Reader
	contentType := "text/plain; charset=utf-8"
	switch method {
	case http.MethodGet, http.MethodDelete:
		if params != nil {
			u, err := url.Parse(rawURL)
			if err != nil {
				return fmt.Errorf("%w: %v", plugin.ErrInvalidAddress, err)
			}
			q := u.Query()
			for k, v := range params {
				q.Set(k, v)
			}
			u.RawQuery = q.Encode()
			rawURL = u.String()
		}
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		switch {
		case params == nil:
			body = strings.NewReader(it.Text())
		case it.ConfigBool("json", false):
			b, err := json.Marshal(params)
			if err != nil {
				return err
			}
			body = bytes.NewReader(b)
			contentType = "application/json"
		default:
			v := url.Values{}
			for k, p := range params {
				v.Set(k, p)
			}
			body = strings.NewReader(v.Encode())
			contentType = "application/x-www-form-urlencoded"
		}
	default:
		return fmt.Errorf("%w: unsupported HTTP method %s", plugin.ErrInvalidAddress, method)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return fmt.Errorf("%w: %v", plugin.ErrInvalidAddress, err)
	}
	req.Header.Set("User-Agent", "mqw")
	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}
	if user := it.ConfigString("username", ""); user != "" {
		req.SetBasicAuth(user, it.ConfigString("password", ""))
	}
	for k, v := range cast.ToStringMapString(it.Config["headers"]) {
		req.Header.Set(k, v)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("cannot %s %s: %w", method, rawURL, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode >= 300 {
		return fmt.Errorf("cannot %s %s: %s", method, rawURL, resp.Status)
	}
	return nil
}
