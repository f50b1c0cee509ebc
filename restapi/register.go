package restapi

import (
	"fmt"
	"sort"

	"github.com/gin-gonic/gin"
)

// HTTPVerb enumerates supported HTTP operations.
type HTTPVerb int

const (
	// Unknown represents an unspecified HTTP verb.
	Unknown HTTPVerb = iota
	// GET lists or retrieves resources.
	GET
	// GET_ONE retrieves a single resource.
	GET_ONE
	// DELETE removes resources.
	DELETE
	// POST creates resources.
	POST
	// PUT replaces resources.
	PUT
	// PATCH partially updates resources.
	PATCH
)

// RestMethod describes a REST route handler.
type RestMethod struct {
	Verb    HTTPVerb
	Path    string
	Handler gin.HandlerFunc
}

// Registry holds the REST methods to mount on a router group.
type Registry struct {
	methods map[string]RestMethod
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{methods: make(map[string]RestMethod)}
}

// RegisterMethod builds a RestMethod and registers it using Register.
func (r *Registry) RegisterMethod(verb HTTPVerb, path string, h gin.HandlerFunc) error {
	return r.Register(RestMethod{
		Verb:    verb,
		Path:    path,
		Handler: h,
	})
}

// Register inserts a RestMethod into the registry preventing duplicates.
func (r *Registry) Register(m RestMethod) error {
	key := fmt.Sprintf("%d_%s", m.Verb, m.Path)
	if _, exists := r.methods[key]; exists {
		return fmt.Errorf("can't add %s, an existing handler in REST method map exists", key)
	}
	r.methods[key] = m
	return nil
}

// RestMethods returns all registered RestMethod entries keyed by verb+path.
func (r *Registry) RestMethods() map[string]RestMethod {
	return r.methods
}

// Mount adds the registered methods to group, in path order, each wrapped with wrap when it
// isn't nil.
func (r *Registry) Mount(group *gin.RouterGroup, wrap func(gin.HandlerFunc) gin.HandlerFunc) error {
	keys := make([]string, 0, len(r.methods))
	for k := range r.methods {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return r.methods[keys[i]].Path < r.methods[keys[j]].Path ||
			r.methods[keys[i]].Path == r.methods[keys[j]].Path && keys[i] < keys[j]
	})
	for _, k := range keys {
		rm := r.methods[k]
		h := rm.Handler
		if wrap != nil {
			h = wrap(h)
		}
		switch rm.Verb {
		case GET, GET_ONE:
			group.GET(rm.Path, h)
		case DELETE:
			group.DELETE(rm.Path, h)
		case POST:
			group.POST(rm.Path, h)
		case PUT:
			group.PUT(rm.Path, h)
		case PATCH:
			group.PATCH(rm.Path, h)
		default:
			return fmt.Errorf("HTTP verb %d not supported", rm.Verb)
		}
	}
	return nil
}
