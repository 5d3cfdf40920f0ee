package e2e

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/rjsadow/agentproto/tests/e2e/testutil"
)

// S6 — SSE reconnect: publish 5 events, disconnect after id=3, reconnect
// with Last-Event-ID: 3 and expect ids 4, 5 in order.
var _ = Describe("SSE reconnect", func() {
	It("replays only events after Last-Event-ID on reconnect", func() {
		srv := testutil.New(GinkgoT(), false)
		sessionID, err := initializeSession(srv.URL)
		Expect(err).NotTo(HaveOccurred())

		for i := 1; i <= 3; i++ {
			srv.Broker.Publish(sessionID, "token", []byte(fmt.Sprintf("tok-%d", i)))
		}

		ctx1, cancel1 := context.WithTimeout(context.Background(), 2*time.Second)
		req1, _ := http.NewRequestWithContext(ctx1, http.MethodGet, srv.URL+"/mcp", nil)
		req1.Header.Set("mcp-session-id", sessionID)
		resp1, err := http.DefaultClient.Do(req1)
		Expect(err).NotTo(HaveOccurred())

		ids := readEventIDsUntil(resp1, 3)
		resp1.Body.Close()
		cancel1()
		Expect(ids).To(Equal([]string{"1", "2", "3"}))

		for i := 4; i <= 5; i++ {
			srv.Broker.Publish(sessionID, "token", []byte(fmt.Sprintf("tok-%d", i)))
		}

		ctx2, cancel2 := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel2()
		req2, _ := http.NewRequestWithContext(ctx2, http.MethodGet, srv.URL+"/mcp", nil)
		req2.Header.Set("mcp-session-id", sessionID)
		req2.Header.Set("Last-Event-ID", "3")
		resp2, err := http.DefaultClient.Do(req2)
		Expect(err).NotTo(HaveOccurred())
		defer resp2.Body.Close()

		replayed := readEventIDsUntil(resp2, 2)
		Expect(replayed).To(Equal([]string{"4", "5"}))
	})
})

// readEventIDsUntil scans SSE "id:" lines off resp.Body until count have
// been read.
func readEventIDsUntil(resp *http.Response, count int) []string {
	scanner := bufio.NewScanner(resp.Body)
	var ids []string
	for len(ids) < count && scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "id: ") {
			ids = append(ids, strings.TrimPrefix(line, "id: "))
		}
	}
	return ids
}
