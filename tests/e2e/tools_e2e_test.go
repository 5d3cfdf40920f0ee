package e2e

import (
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/rjsadow/agentproto/tests/e2e/testutil"
)

var _ = Describe("tool calling", func() {
	var baseURL string
	var sessionID string

	BeforeEach(func() {
		srv := testutil.New(GinkgoT(), false)
		baseURL = srv.URL
		var err error
		sessionID, err = initializeSession(baseURL)
		Expect(err).NotTo(HaveOccurred())
	})

	// S2 — Tool call.
	It("adds two numbers and returns a success result with no isError", func() {
		_, resp, err := postRPC(baseURL, sessionID, "tools/call", map[string]any{
			"name":      "calculate",
			"arguments": map[string]any{"operation": "add", "a": 5, "b": 3},
		}, 2)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Error).To(BeNil())

		var result struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
			IsError bool `json:"isError"`
		}
		Expect(decodeResult(resp, &result)).To(Succeed())
		Expect(result.IsError).To(BeFalse())
		Expect(result.Content).NotTo(BeEmpty())
		Expect(result.Content[0].Text).To(ContainSubstring("8"))
	})

	// S3 — Division by zero.
	It("surfaces division by zero as an error-shaped result, not a protocol error", func() {
		httpResp, resp, err := postRPC(baseURL, sessionID, "tools/call", map[string]any{
			"name":      "calculate",
			"arguments": map[string]any{"operation": "divide", "a": 10, "b": 0},
		}, 3)
		Expect(err).NotTo(HaveOccurred())
		Expect(httpResp.StatusCode).To(Equal(http.StatusOK))
		Expect(resp.Error).To(BeNil())

		var result struct {
			Content []struct{ Text string `json:"text"` } `json:"content"`
			IsError bool `json:"isError"`
		}
		Expect(decodeResult(resp, &result)).To(Succeed())
		Expect(result.IsError).To(BeTrue())
		Expect(result.Content[0].Text).To(ContainSubstring("zero"))
	})

	// S4 — Unknown tool.
	It("surfaces an unknown tool name as an error-shaped result", func() {
		_, resp, err := postRPC(baseURL, sessionID, "tools/call", map[string]any{
			"name": "nope",
		}, 4)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Error).To(BeNil())

		var result struct {
			Content []struct{ Text string `json:"text"` } `json:"content"`
			IsError bool `json:"isError"`
		}
		Expect(decodeResult(resp, &result)).To(Succeed())
		Expect(result.IsError).To(BeTrue())
		Expect(result.Content[0].Text).To(ContainSubstring("nope"))
	})
})

// S5 — Invalid protocol version header.
var _ = Describe("protocol version gating", func() {
	It("rejects an unsupported mcp-protocol-version before dispatch", func() {
		srv := testutil.New(GinkgoT(), false)

		req, _ := http.NewRequest(http.MethodPost, srv.URL+"/mcp", nil)
		req.Header.Set("mcp-protocol-version", "1999-01-01")
		req.Header.Set("Content-Type", "application/json")
		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()

		Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		body := make([]byte, 256)
		n, _ := resp.Body.Read(body)
		Expect(string(body[:n])).To(ContainSubstring("Unsupported protocol version"))
	})
})
