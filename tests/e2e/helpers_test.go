package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/rjsadow/agentproto/tests/e2e/testutil"
)

type rpcEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// postRPC sends one JSON-RPC request/notification to /mcp and returns the
// decoded envelope (nil for notifications, which get 204 No Content) plus
// the raw HTTP response for status/header assertions.
func postRPC(baseURL, sessionID, method string, params any, id any) (*http.Response, *rpcResponse, error) {
	var raw json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return nil, nil, err
		}
		raw = b
	}

	body, err := json.Marshal(rpcEnvelope{JSONRPC: "2.0", ID: id, Method: method, Params: raw})
	if err != nil {
		return nil, nil, err
	}

	req, err := http.NewRequest(http.MethodPost, baseURL+"/mcp", bytes.NewReader(body))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("mcp-protocol-version", testutil.ProtocolVersion)
	if sessionID != "" {
		req.Header.Set("mcp-session-id", sessionID)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp, nil, err
	}
	if len(data) == 0 {
		return resp, nil, nil
	}

	var decoded rpcResponse
	if err := json.Unmarshal(data, &decoded); err != nil {
		return resp, nil, fmt.Errorf("decoding response %q: %w", data, err)
	}
	return resp, &decoded, nil
}

// initializeSession runs the initialize + notifications/initialized
// handshake and returns the assigned session id.
func initializeSession(baseURL string) (string, error) {
	resp, _, err := postRPC(baseURL, "", "initialize", map[string]any{
		"protocolVersion": testutil.ProtocolVersion,
		"clientInfo":      map[string]any{"name": "e2e-client", "version": "1.0.0"},
	}, 1)
	if err != nil {
		return "", err
	}
	sessionID := resp.Header.Get("mcp-session-id")
	if sessionID == "" {
		return "", fmt.Errorf("initialize response carried no mcp-session-id header")
	}

	if _, _, err := postRPC(baseURL, sessionID, "notifications/initialized", nil, nil); err != nil {
		return "", err
	}
	return sessionID, nil
}

func decodeResult(resp *rpcResponse, v any) error {
	return json.Unmarshal(resp.Result, v)
}
