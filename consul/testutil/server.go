package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/hashicorp/consul/api"
)

// Request is one request received by the fake.
type Request struct {
	Method string
	Path   string
	Query  string
	Body   []byte
}

type failure struct {
	status int
	body   string
}

// Server is an in-memory Consul agent.
type Server struct {
	srv *httptest.Server

	mu         sync.Mutex
	index      uint64
	kv         map[string][]byte
	registered map[string]*api.AgentServiceRegistration
	instances  map[string][]*api.ServiceEntry
	failures   map[string]failure
	requests   []Request
}

// NewServer starts a fake agent and stops it when the test ends.
func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{}
	s.Reset()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/kv/{key...}", s.handleKVGet)
	mux.HandleFunc("PUT /v1/kv/{key...}", s.handleKVPut)
	mux.HandleFunc("PUT /v1/agent/service/register", s.handleRegister)
	mux.HandleFunc("PUT /v1/agent/service/deregister/{id}", s.handleDeregister)
	mux.HandleFunc("GET /v1/catalog/services", s.handleCatalogServices)
	mux.HandleFunc("GET /v1/health/service/{name}", s.handleHealthService)

	s.srv = httptest.NewServer(s.intercept(mux))
	t.Cleanup(s.srv.Close)
	return s
}

// Address returns host:port of the fake agent.
func (s *Server) Address() string {
	return strings.TrimPrefix(s.srv.URL, "http://")
}

// URL returns the base URL of the fake agent.
func (s *Server) URL() string { return s.srv.URL }

// Close stops the server. Later requests fail to connect.
func (s *Server) Close() { s.srv.Close() }

// Reset drops all state, recorded requests and failures.
func (s *Server) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index = 1
	s.kv = make(map[string][]byte)
	s.registered = make(map[string]*api.AgentServiceRegistration)
	s.instances = make(map[string][]*api.ServiceEntry)
	s.failures = make(map[string]failure)
	s.requests = nil
}

// SetKV stores a value.
func (s *Server) SetKV(key string, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kv[key] = value
	s.index++
}

// KV returns a stored value.
func (s *Server) KV(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.kv[key]
	return v, ok
}

// Registered returns the registration stored under id.
func (s *Server) Registered(id string) (*api.AgentServiceRegistration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.registered[id]
	return r, ok
}

// AddInstance adds a passing instance of a service to the health endpoint.
func (s *Server) AddInstance(entry *api.ServiceEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name := entry.Service.Service
	s.instances[name] = append(s.instances[name], entry)
	s.index++
}

// FailWith makes every request whose path starts with prefix answer status
// with body.
func (s *Server) FailWith(prefix string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[prefix] = failure{status: status, body: body}
}

// Requests returns the requests received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// RequestCount returns how many requests hit path prefix.
func (s *Server) RequestCount(prefix string) int {
	n := 0
	for _, r := range s.Requests() {
		if strings.HasPrefix(r.Path, prefix) {
			n++
		}
	}
	return n
}

func (s *Server) intercept(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		r.Body = io.NopCloser(strings.NewReader(string(body)))

		s.mu.Lock()
		s.requests = append(s.requests, Request{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Body:   body,
		})
		f, failing := s.matchFailure(r.URL.Path)
		s.mu.Unlock()

		if failing {
			http.Error(w, f.body, f.status)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// matchFailure must be called with mu held.
func (s *Server) matchFailure(path string) (failure, bool) {
	longest := ""
	for prefix := range s.failures {
		if strings.HasPrefix(path, prefix) && len(prefix) > len(longest) {
			longest = prefix
		}
	}
	if longest == "" {
		return failure{}, false
	}
	return s.failures[longest], true
}

func (s *Server) writeQuery(w http.ResponseWriter, v any) {
	s.mu.Lock()
	index := s.index
	s.mu.Unlock()
	setQueryHeaders(w, index)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// setQueryHeaders sets the metadata headers the api client parses on reads.
func setQueryHeaders(w http.ResponseWriter, index uint64) {
	w.Header().Set("X-Consul-Index", strconv.FormatUint(index, 10))
	w.Header().Set("X-Consul-LastContact", "0")
	w.Header().Set("X-Consul-KnownLeader", "true")
}

func (s *Server) handleKVGet(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	s.mu.Lock()
	value, ok := s.kv[key]
	index := s.index
	s.mu.Unlock()

	if !ok {
		setQueryHeaders(w, index)
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if _, raw := r.URL.Query()["raw"]; raw {
		_, _ = w.Write(value)
		return
	}
	s.writeQuery(w, []*api.KVPair{{Key: key, Value: value, ModifyIndex: index}})
}

func (s *Server) handleKVPut(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	s.SetKV(r.PathValue("key"), body)
	_, _ = w.Write([]byte("true"))
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var reg api.AgentServiceRegistration
	if err := json.NewDecoder(r.Body).Decode(&reg); err != nil {
		http.Error(w, "Request decode failed: "+err.Error(), http.StatusBadRequest)
		return
	}
	if reg.Name == "" {
		http.Error(w, "Missing service name", http.StatusBadRequest)
		return
	}
	if reg.ID == "" {
		reg.ID = reg.Name
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.registered[reg.ID] = &reg
	s.instances[reg.Name] = append(removeInstance(s.instances[reg.Name], reg.ID), &api.ServiceEntry{
		Node: &api.Node{Node: "fake-node", Address: reg.Address},
		Service: &api.AgentService{
			ID:      reg.ID,
			Service: reg.Name,
			Tags:    reg.Tags,
			Meta:    reg.Meta,
			Address: reg.Address,
			Port:    reg.Port,
		},
		Checks: api.HealthChecks{{Status: api.HealthPassing, ServiceID: reg.ID}},
	})
	s.index++
}

func (s *Server) handleDeregister(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.mu.Lock()
	defer s.mu.Unlock()
	reg, ok := s.registered[id]
	if !ok {
		http.Error(w, "Unknown service ID \""+id+"\". Ensure that the service ID is passed, not the service name.", http.StatusNotFound)
		return
	}
	delete(s.registered, id)
	s.instances[reg.Name] = removeInstance(s.instances[reg.Name], id)
	s.index++
}

func (s *Server) handleCatalogServices(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	services := map[string][]string{"consul": {}}
	for name, entries := range s.instances {
		if len(entries) == 0 {
			continue
		}
		tags := map[string]struct{}{}
		for _, e := range entries {
			for _, t := range e.Service.Tags {
				tags[t] = struct{}{}
			}
		}
		list := make([]string, 0, len(tags))
		for t := range tags {
			list = append(list, t)
		}
		sort.Strings(list)
		services[name] = list
	}
	s.mu.Unlock()
	s.writeQuery(w, services)
}

func (s *Server) handleHealthService(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	passingOnly := r.URL.Query().Has("passing")

	s.mu.Lock()
	entries := make([]*api.ServiceEntry, 0, len(s.instances[name]))
	for _, e := range s.instances[name] {
		if passingOnly && e.Checks.AggregatedStatus() != api.HealthPassing {
			continue
		}
		entries = append(entries, e)
	}
	s.mu.Unlock()
	s.writeQuery(w, entries)
}

func removeInstance(entries []*api.ServiceEntry, id string) []*api.ServiceEntry {
	out := entries[:0:0]
	for _, e := range entries {
		if e.Service.ID != id {
			out = append(out, e)
		}
	}
	return out
}
