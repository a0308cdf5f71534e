package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"net/http"
	"strings"

	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

// Telegram-side caps for setMyCommands.
const (
	maxMenuCommands  = 100
	maxMenuDescBytes = 256
)

type menuEntry struct {
	Command     string `json:"command"`
	Description string `json:"description"`
}

func menuDigest(cmds []kit.BotCommand) uint64 {
	h := fnv.New64a()
	for _, c := range cmds {
		h.Write([]byte(c.Command))
		h.Write([]byte{0})
		h.Write([]byte(c.Description))
		h.Write([]byte{0})
	}
	return h.Sum64()
}

// UpdateMenuCommands pushes the bot's "/" command list to Telegram
// (setMyCommands). The network call is skipped while the list is unchanged
// since the last successful push.
func (a *Adapter) UpdateMenuCommands(ctx context.Context, cmds []kit.BotCommand) error {
	a.menuMu.Lock()
	defer a.menuMu.Unlock()

	sum := menuDigest(cmds)
	if sum == a.menuSum {
		return nil
	}

	var body struct {
		Commands []menuEntry `json:"commands"`
	}
	body.Commands = make([]menuEntry, 0, len(cmds))
	for _, c := range cmds {
		if c.Command == "" {
			continue
		}
		d := c.Description
		if d == "" {
			d = c.Command
		}
		if len(d) > maxMenuDescBytes {
			d = d[:maxMenuDescBytes]
		}
		body.Commands = append(body.Commands, menuEntry{Command: c.Command, Description: d})
		if len(body.Commands) >= maxMenuCommands {
			break
		}
	}

	if err := a.callSetMyCommands(ctx, body); err != nil {
		return err
	}
	a.menuSum = sum
	a.log.Info("menu commands updated", logx.Int("count", len(body.Commands)))
	return nil
}

func (a *Adapter) callSetMyCommands(ctx context.Context, body any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	url := "https://api.telegram.org/bot" + strings.TrimSpace(a.cfg.Token) + "/setMyCommands"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	client := a.http
	if client == nil {
		client = &http.Client{Timeout: apiCallTimeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var reply struct {
		OK          bool   `json:"ok"`
		ErrorCode   int    `json:"error_code"`
		Description string `json:"description"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&reply)

	if resp.StatusCode/100 == 2 && reply.OK {
		return nil
	}
	if reply.Description != "" {
		return fmt.Errorf("telegram setMyCommands failed: %s (code=%d http=%d)", reply.Description, reply.ErrorCode, resp.StatusCode)
	}
	return fmt.Errorf("telegram setMyCommands failed: http=%d", resp.StatusCode)
}
