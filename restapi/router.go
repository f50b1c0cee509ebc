package restapi

import (
	"github.com/gin-gonic/gin"
	swaggerfiles "github.com/swaggo/files"     // swagger embed files
	ginSwagger "github.com/swaggo/gin-swagger" // gin-swagger middleware

	"github.com/sharedcode/flagstore"
	"github.com/sharedcode/flagstore/restapi/docs"
)

// BasePath is where the REST methods are mounted.
const BasePath = "/api/v1"

// NewRouter returns a gin engine serving store's REST methods under BasePath, guarded by bearer
// token verification, and the Swagger UI under /swagger.
func NewRouter(store flagstore.DataStore, settings AuthSettings) (*gin.Engine, error) {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	docs.SwaggerInfo.BasePath = BasePath

	registry := NewRegistry()
	if err := NewHandlers(store).Register(registry); err != nil {
		return nil, err
	}
	if err := registry.Mount(router.Group(BasePath), VerifyHeaderToken(settings)); err != nil {
		return nil, err
	}
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerfiles.Handler))
	return router, nil
}
