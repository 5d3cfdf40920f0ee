package e2e

import (
	"crypto/sha256"
	"encoding/base64"
	"io"
	"net/http"
	"net/url"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/rjsadow/agentproto/tests/e2e/testutil"
)

// S1 — Full OAuth loop.
var _ = Describe("OAuth authorization code + PKCE loop", func() {
	It("issues tokens for a valid code and rejects a replayed grant", func() {
		srv := testutil.New(GinkgoT(), true)

		verifier := strings.Repeat("a", 64)
		sum := sha256.Sum256([]byte(verifier))
		challenge := base64.RawURLEncoding.EncodeToString(sum[:])

		client := &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}

		authorizeURL := srv.URL + "/oauth/authorize?" + url.Values{
			"response_type":         {"code"},
			"client_id":             {testutil.TestOAuthClientID},
			"redirect_uri":          {testutil.TestOAuthRedirectURI},
			"code_challenge":        {challenge},
			"code_challenge_method": {"S256"},
			"state":                 {"s"},
		}.Encode()

		resp, err := client.Get(authorizeURL)
		Expect(err).NotTo(HaveOccurred())
		resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusFound))

		loginResp, err := client.PostForm(srv.URL+"/oauth/login?"+url.Values{
			"response_type":         {"code"},
			"client_id":             {testutil.TestOAuthClientID},
			"redirect_uri":          {testutil.TestOAuthRedirectURI},
			"code_challenge":        {challenge},
			"code_challenge_method": {"S256"},
			"state":                 {"s"},
		}.Encode(), url.Values{
			"username": {testutil.TestUser},
			"password": {testutil.TestPassword},
		})
		Expect(err).NotTo(HaveOccurred())
		loginResp.Body.Close()
		Expect(loginResp.StatusCode).To(Equal(http.StatusFound))

		loc, err := url.Parse(loginResp.Header.Get("Location"))
		Expect(err).NotTo(HaveOccurred())
		Expect(loc.Query().Get("state")).To(Equal("s"))
		code := loc.Query().Get("code")
		Expect(code).NotTo(BeEmpty())

		tokenForm := url.Values{
			"grant_type":    {"authorization_code"},
			"code":          {code},
			"redirect_uri":  {testutil.TestOAuthRedirectURI},
			"client_id":     {testutil.TestOAuthClientID},
			"code_verifier": {verifier},
		}

		tokenResp, err := http.PostForm(srv.URL+"/oauth/token", tokenForm)
		Expect(err).NotTo(HaveOccurred())
		defer tokenResp.Body.Close()
		Expect(tokenResp.StatusCode).To(Equal(http.StatusOK))

		body, err := io.ReadAll(tokenResp.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(body)).To(ContainSubstring(`"token_type":"Bearer"`))
		Expect(string(body)).To(ContainSubstring(`"expires_in":3600`))
		Expect(string(body)).To(ContainSubstring("access_token"))
		Expect(string(body)).To(ContainSubstring("refresh_token"))

		replayResp, err := http.PostForm(srv.URL+"/oauth/token", tokenForm)
		Expect(err).NotTo(HaveOccurred())
		defer replayResp.Body.Close()
		Expect(replayResp.StatusCode).To(Equal(http.StatusBadRequest))

		replayBody, err := io.ReadAll(replayResp.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(replayBody)).To(ContainSubstring(`"invalid_grant"`))
	})
})
