// Copyright 2025 The Authors (see AUTHORS file)
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/google/go-github/v61/github"
)

// fakePageSize is the page size of list responses of the fake server.
const fakePageSize = 2

type fakeTokenSource struct {
	orgTokens map[string]string
	errs      map[string]error
}

func (f *fakeTokenSource) TokenForOrg(ctx context.Context, org string) (string, error) {
	if err, ok := f.errs[org]; ok {
		return "", err
	}
	return f.orgTokens[org], nil
}

type GitHubData struct {
	// key: org login
	orgs  map[string]*github.Organization
	teams map[string][]*github.Team
	// key: "orgID:teamID"
	teamMembers map[string][]*github.User
	// key: org login, value: the token the org accepts
	orgTokens map[string]string
	// orgGets counts the org lookups served.
	orgGets atomic.Int64
}

func githubClient(server *httptest.Server) *github.Client {
	client := github.NewClient(nil)
	baseURL, _ := url.Parse(server.URL + "/")
	client.BaseURL = baseURL
	return client
}

func fakeGitHub(githubData *GitHubData) *httptest.Server {
	mux := http.NewServeMux()
	mux.Handle("GET /orgs/{org}", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		org := r.PathValue("org")
		if !authorized(w, r, githubData.orgTokens[org]) {
			return
		}
		githubData.orgGets.Add(1)
		o, ok := githubData.orgs[org]
		if !ok {
			w.WriteHeader(404)
			fmt.Fprintf(w, "org %s not found", org)
			return
		}
		writeJSON(w, o)
	}))
	mux.Handle("GET /orgs/{org}/teams", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		org := r.PathValue("org")
		if !authorized(w, r, githubData.orgTokens[org]) {
			return
		}
		teams, ok := githubData.teams[org]
		if !ok {
			w.WriteHeader(404)
			fmt.Fprintf(w, "org %s not found", org)
			return
		}
		writeJSON(w, page(w, r, teams))
	}))
	mux.Handle("GET /organizations/{org_id}/team/{team_id}/members", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("role") != RoleAll {
			w.WriteHeader(400)
			fmt.Fprintf(w, "unexpected role %q", r.URL.Query().Get("role"))
			return
		}
		key := r.PathValue("org_id") + IDSep + r.PathValue("team_id")
		users, ok := githubData.teamMembers[key]
		if !ok {
			w.WriteHeader(404)
			fmt.Fprintf(w, "team %s not found", key)
			return
		}
		writeJSON(w, page(w, r, users))
	}))
	return httptest.NewServer(mux)
}

func authorized(w http.ResponseWriter, r *http.Request, want string) bool {
	if got := r.Header.Get("Authorization"); want != "" && got != "Bearer "+want {
		w.WriteHeader(401)
		fmt.Fprintf(w, "bad credentials")
		return false
	}
	return true
}

// page returns the requested page of items and sets the Link header when more
// pages follow.
func page[T any](w http.ResponseWriter, r *http.Request, items []T) []T {
	n := 1
	if p := r.URL.Query().Get("page"); p != "" {
		n, _ = strconv.Atoi(p)
	}
	start := min((n-1)*fakePageSize, len(items))
	end := min(start+fakePageSize, len(items))
	if end < len(items) {
		next := *r.URL
		q := next.Query()
		q.Set("page", strconv.Itoa(n+1))
		next.RawQuery = q.Encode()
		next.Scheme = "http"
		next.Host = r.Host
		w.Header().Set("Link", fmt.Sprintf("<%s>; rel=%q", strings.TrimSpace(next.String()), "next"))
	}
	return items[start:end]
}

func writeJSON(w http.ResponseWriter, v any) {
	jsn, err := json.Marshal(v)
	if err != nil {
		w.WriteHeader(500)
		fmt.Fprintf(w, "failed to marshal response")
		return
	}
	_, _ = w.Write(jsn)
}
