package restapi

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestRegisterRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	h := func(c *gin.Context) {}
	if err := r.RegisterMethod(GET, "/a", h); err != nil {
		t.Fatalf("RegisterMethod failed: %v", err)
	}
	if err := r.RegisterMethod(GET, "/a", h); err == nil {
		t.Error("duplicate registration succeeded")
	}
	if err := r.RegisterMethod(PUT, "/a", h); err != nil {
		t.Errorf("same path, other verb failed: %v", err)
	}
	if len(r.RestMethods()) != 2 {
		t.Errorf("got %d methods, expected 2", len(r.RestMethods()))
	}
}

func TestMount(t *testing.T) {
	r := NewRegistry()
	for _, v := range []HTTPVerb{GET, DELETE, POST, PUT, PATCH} {
		r.RegisterMethod(v, "/x", func(c *gin.Context) { c.String(http.StatusOK, c.Request.Method) })
	}
	wrapped := 0
	router := gin.New()
	err := r.Mount(router.Group("/v"), func(h gin.HandlerFunc) gin.HandlerFunc {
		wrapped++
		return h
	})
	if err != nil {
		t.Fatalf("Mount failed: %v", err)
	}
	if wrapped != 5 {
		t.Errorf("wrapped %d handlers, expected 5", wrapped)
	}
	for _, m := range []string{http.MethodGet, http.MethodDelete, http.MethodPost, http.MethodPut, http.MethodPatch} {
		if w := do(router, m, "/v/x", ""); w.Code != http.StatusOK || w.Body.String() != m {
			t.Errorf("%s got %d %s", m, w.Code, w.Body.String())
		}
	}

	bad := NewRegistry()
	bad.RegisterMethod(Unknown, "/y", func(c *gin.Context) {})
	if err := bad.Mount(gin.New().Group("/"), nil); err == nil {
		t.Error("Mount of an unknown verb succeeded")
	}
}
