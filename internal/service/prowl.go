package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"mqw.szuro.net/pkg/item"
	"mqw.szuro.net/pkg/plugin"
)

const prowlAPI = "https://api.prowlapp.com/publicapi/add"

// Prowl posts the message to the Prowl API. addrs[0] is the API key and
// addrs[1] the event name shown by the app.
type Prowl struct {
	plugin.BaseService
	client *http.Client
}

func (p *Prowl) Reentrant() bool { return true }

func (p *Prowl) Initialize(name string, options map[string]any) error {
	if err := p.BaseService.Initialize(name, options); err != nil {
		return err
	}
	p.client = &http.Client{}
	return nil
}

func (p *Prowl) Deliver(ctx context.Context, it *item.Item) error {
	apiKey, err := it.Addr(0)
	if err != nil {
		return err
	}
	event, err := it.Addr(1)
	if err != nil {
		return err
	}
	priority := max(-2, min(2, it.Priority))

	form := url.Values{
		"apikey":      {apiKey},
		"application": {it.Title},
		"event":       {event},
		"description": {it.Text()},
		"priority":    {strconv.Itoa(priority)},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, it.ConfigString("url", prowlAPI), strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("cannot prowl: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("cannot prowl: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return nil
}
