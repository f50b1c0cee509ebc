// Package restapi surfaces a flagstore.DataStore over HTTP with gin, for inspecting and
// administering the stored flags and segments with tools like curl or Postman.
package restapi

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sharedcode/flagstore"
	"github.com/sharedcode/flagstore/cel"
)

// Handlers serves the REST methods of one data store.
type Handlers struct {
	Store flagstore.DataStore
}

// NewHandlers returns the handlers of store.
func NewHandlers(store flagstore.DataStore) *Handlers {
	return &Handlers{Store: store}
}

// Register adds the data store methods to registry.
func (h *Handlers) Register(registry *Registry) error {
	return errors.Join(
		registry.RegisterMethod(GET, "/initialized", h.IsInitialized),
		registry.RegisterMethod(GET, "/kinds/:kind", h.GetAll),
		registry.RegisterMethod(GET_ONE, "/kinds/:kind/:key", h.GetItem),
		registry.RegisterMethod(PUT, "/kinds/:kind/:key", h.PutItem),
		registry.RegisterMethod(POST, "/init", h.Init),
	)
}

// statusOf maps a data store error to an HTTP status.
func statusOf(err error) int {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	}
	switch flagstore.ErrorCodeOf(err) {
	case flagstore.UnknownDataKind:
		return http.StatusNotFound
	case flagstore.ConflictRetriesExhausted:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"message": message})
}

func failWith(c *gin.Context, err error, message string) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		log.Warn(message, "path", c.Request.URL.Path, "error", err)
	}
	fail(c, status, fmt.Sprintf("%s, error: %v", message, err))
}

func kindParam(c *gin.Context) (flagstore.DataKind, bool) {
	kind, err := flagstore.ParseDataKind(c.Param("kind"))
	if err != nil {
		fail(c, http.StatusNotFound, fmt.Sprintf("data kind %s not found", c.Param("kind")))
		return kind, false
	}
	return kind, true
}

// IsInitialized godoc
// @Summary IsInitialized tells whether the data store holds a full data set.
// @Schemes
// @Description IsInitialized responds with {"initialized": true} once Init has completed on the data store.
// @Tags DataStore
// @Produce json
// @Failure 500 {object} map[string]any
// @Success 200 {object} map[string]bool
// @Router /initialized [get]
// @Security Bearer
func (h *Handlers) IsInitialized(c *gin.Context) {
	ok, err := h.Store.IsInitialized(c.Request.Context())
	if err != nil {
		failWith(c, err, "checking initialized marker failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"initialized": ok})
}

// GetAll godoc
// @Summary GetAll returns all items of a data kind.
// @Schemes
// @Description GetAll responds with the items of the kind keyed by item key, optionally filtered with a CEL expression over "item".
// @Tags Items
// @Produce json
// @Param			kind	path		string		true	"Data kind namespace, features or segments"
// @Param			filter	query		string		false	"CEL expression, e.g. item.version > 3 && !item.deleted"
// @Failure 400 {object} map[string]any
// @Failure 404 {object} map[string]any
// @Success 200 {object} map[string]flagstore.Item
// @Router /kinds/{kind} [get]
// @Security Bearer
func (h *Handlers) GetAll(c *gin.Context) {
	kind, ok := kindParam(c)
	if !ok {
		return
	}
	var filter *cel.Filter
	if expr := c.Query("filter"); expr != "" {
		var err error
		if filter, err = cel.NewFilter(expr); err != nil {
			fail(c, http.StatusBadRequest, fmt.Sprintf("invalid filter, error: %v", err))
			return
		}
	}
	items, err := h.Store.GetAll(c.Request.Context(), kind)
	if err != nil {
		failWith(c, err, fmt.Sprintf("fetching %s failed", kind))
		return
	}
	if filter != nil {
		if items, err = filter.Apply(items); err != nil {
			fail(c, http.StatusBadRequest, fmt.Sprintf("filter failed, error: %v", err))
			return
		}
	}
	c.JSON(http.StatusOK, items)
}

// GetItem godoc
// @Summary GetItem returns an item of a data kind with a given key.
// @Schemes
// @Description GetItem responds with the item, deleted items (tombstones) included.
// @Tags Items
// @Produce json
// @Param			kind	path		string		true	"Data kind namespace, features or segments"
// @Param			key		path		string		true	"Key of item to fetch"    minlength(1)
// @Failure 404 {object} map[string]any
// @Success 200 {object} flagstore.Item
// @Router /kinds/{kind}/{key} [get]
// @Security Bearer
func (h *Handlers) GetItem(c *gin.Context) {
	kind, ok := kindParam(c)
	if !ok {
		return
	}
	key := c.Param("key")
	item, found, err := h.Store.Get(c.Request.Context(), kind, key)
	if err != nil {
		failWith(c, err, fmt.Sprintf("fetching %s %s failed", kind, key))
		return
	}
	if !found {
		fail(c, http.StatusNotFound, fmt.Sprintf("%s with key %s not found", kind, key))
		return
	}
	c.JSON(http.StatusOK, item)
}

// PutItem godoc
// @Summary PutItem stores an item unless a same or newer version is already stored.
// @Schemes
// @Description PutItem responds with the item stored once the update completes, which is the already stored one when the request is stale.
// @Tags Items
// @Accept json
// @Produce json
// @Param			kind	path		string			true	"Data kind namespace, features or segments"
// @Param			key		path		string			true	"Key of item to store"    minlength(1)
// @Param			item	body		flagstore.Item	true	"Item to store"
// @Failure 400 {object} map[string]any
// @Failure 404 {object} map[string]any
// @Success 200 {object} flagstore.Item
// @Router /kinds/{kind}/{key} [put]
// @Security Bearer
func (h *Handlers) PutItem(c *gin.Context) {
	kind, ok := kindParam(c)
	if !ok {
		return
	}
	key := c.Param("key")
	var item flagstore.Item
	if err := c.ShouldBindJSON(&item); err != nil {
		fail(c, http.StatusBadRequest, fmt.Sprintf("invalid item, error: %v", err))
		return
	}
	if item.Key == "" {
		item.Key = key
	}
	if item.Key != key {
		fail(c, http.StatusBadRequest, fmt.Sprintf("item key %s does not match path key %s", item.Key, key))
		return
	}
	stored, err := h.Store.Upsert(c.Request.Context(), kind, item)
	if err != nil {
		failWith(c, err, fmt.Sprintf("storing %s %s failed", kind, key))
		return
	}
	c.JSON(http.StatusOK, stored)
}

// Init godoc
// @Summary Init replaces the whole content of the data store.
// @Schemes
// @Description Init takes a full data set keyed by data kind namespace, then item key, and writes it to the data store.
// @Tags DataStore
// @Accept json
// @Produce json
// @Param			dataset	body		map[string]map[string]flagstore.Item	true	"Full data set"
// @Failure 400 {object} map[string]any
// @Failure 500 {object} map[string]any
// @Success 200 {object} map[string]any
// @Router /init [post]
// @Security Bearer
func (h *Handlers) Init(c *gin.Context) {
	var body map[string]map[string]flagstore.Item
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, http.StatusBadRequest, fmt.Sprintf("invalid data set, error: %v", err))
		return
	}
	dataset, err := ToDataset(body)
	if err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.Store.Init(c.Request.Context(), dataset); err != nil {
		failWith(c, err, "initializing data store failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "data store initialized", "items": dataset.Count()})
}

// ToDataset converts a data set keyed by kind namespace into a flagstore.Dataset.
func ToDataset(body map[string]map[string]flagstore.Item) (flagstore.Dataset, error) {
	dataset := make(flagstore.Dataset, len(body))
	for ns, items := range body {
		kind, err := flagstore.ParseDataKind(ns)
		if err != nil {
			return nil, err
		}
		if items == nil {
			items = map[string]flagstore.Item{}
		}
		dataset[kind] = items
	}
	return dataset, nil
}
