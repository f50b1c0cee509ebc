package consul

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/hashicorp/consul/api"
)

// fakeConsul serves the subset of Consul's HTTP API the backend uses: /v1/kv and /v1/txn.
type fakeConsul struct {
	mu        sync.Mutex
	data      map[string]*api.KVPair
	index     uint64
	txnCalls  [][]string
	failTxnAt int
	beforeCAS func(key string)
}

func newFakeConsul(t *testing.T) (*fakeConsul, *httptest.Server) {
	t.Helper()
	f := &fakeConsul{data: map[string]*api.KVPair{}}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/kv/", f.handleKV)
	mux.HandleFunc("/v1/txn", f.handleTxn)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return f, srv
}

func newTestClient(t *testing.T, srv *httptest.Server) *api.Client {
	t.Helper()
	c, err := api.NewClient(&api.Config{Address: srv.URL})
	if err != nil {
		t.Fatalf("api.NewClient failed: %v", err)
	}
	return c
}

func (f *fakeConsul) setBeforeCAS(hook func(key string)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.beforeCAS = hook
}

func (f *fakeConsul) setFailTxnAt(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failTxnAt = n
}

func (f *fakeConsul) txns() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.txnCalls)
}

func (f *fakeConsul) writeMeta(w http.ResponseWriter) {
	w.Header().Set("X-Consul-Index", strconv.FormatUint(f.index, 10))
	w.Header().Set("X-Consul-LastContact", "0")
	w.Header().Set("X-Consul-KnownLeader", "true")
}

func (f *fakeConsul) writeJSON(w http.ResponseWriter, status int, v any) {
	f.writeMeta(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (f *fakeConsul) set(key string, value []byte) {
	f.index++
	p, ok := f.data[key]
	if !ok {
		p = &api.KVPair{Key: key, CreateIndex: f.index}
		f.data[key] = p
	}
	p.Value = slices.Clone(value)
	p.ModifyIndex = f.index
}

func (f *fakeConsul) sortedKeys(prefix string) []string {
	var keys []string
	for k := range f.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys
}

func (f *fakeConsul) handleKV(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/v1/kv/")
	q := r.URL.Query()

	if r.Method == http.MethodPut && q.Has("cas") {
		f.mu.Lock()
		hook := f.beforeCAS
		f.mu.Unlock()
		if hook != nil {
			hook(key)
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.Method {
	case http.MethodGet:
		switch {
		case q.Has("keys"):
			keys := f.sortedKeys(key)
			if len(keys) == 0 {
				f.writeMeta(w)
				w.WriteHeader(http.StatusNotFound)
				return
			}
			f.writeJSON(w, http.StatusOK, keys)
		case q.Has("recurse"):
			keys := f.sortedKeys(key)
			if len(keys) == 0 {
				f.writeMeta(w)
				w.WriteHeader(http.StatusNotFound)
				return
			}
			pairs := make([]*api.KVPair, 0, len(keys))
			for _, k := range keys {
				pairs = append(pairs, f.data[k])
			}
			f.writeJSON(w, http.StatusOK, pairs)
		default:
			p, ok := f.data[key]
			if !ok {
				f.writeMeta(w)
				w.WriteHeader(http.StatusNotFound)
				return
			}
			f.writeJSON(w, http.StatusOK, []*api.KVPair{p})
		}
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		if q.Has("cas") {
			expected, _ := strconv.ParseUint(q.Get("cas"), 10, 64)
			var current uint64
			if p, ok := f.data[key]; ok {
				current = p.ModifyIndex
			}
			if current != expected {
				f.writeJSON(w, http.StatusOK, false)
				return
			}
		}
		f.set(key, body)
		f.writeJSON(w, http.StatusOK, true)
	case http.MethodDelete:
		f.index++
		delete(f.data, key)
		f.writeJSON(w, http.StatusOK, true)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeConsul) handleTxn(w http.ResponseWriter, r *http.Request) {
	var ops api.TxnOps
	if err := json.NewDecoder(r.Body).Decode(&ops); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if len(ops) > maxTxnOps {
		http.Error(w, "Transaction contains too many operations", http.StatusRequestEntityTooLarge)
		return
	}
	keys := make([]string, 0, len(ops))
	for _, op := range ops {
		keys = append(keys, string(op.KV.Verb)+" "+op.KV.Key)
	}
	f.txnCalls = append(f.txnCalls, keys)
	if f.failTxnAt == len(f.txnCalls) {
		f.writeJSON(w, http.StatusConflict, api.TxnResponse{
			Errors: api.TxnErrors{{OpIndex: 0, What: "injected failure"}},
		})
		return
	}
	for _, op := range ops {
		switch op.KV.Verb {
		case api.KVSet:
			f.set(op.KV.Key, op.KV.Value)
		case api.KVDelete:
			f.index++
			delete(f.data, op.KV.Key)
		}
	}
	f.writeJSON(w, http.StatusOK, api.TxnResponse{})
}
