package emulator

import (
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/mdouchement/aletsch/internal/emulator/registry"
	middlewarepkg "github.com/mdouchement/aletsch/internal/emulator/middleware"
	"github.com/mdouchement/aletsch/internal/model"
	"github.com/mdouchement/aletsch/internal/storage"
	"github.com/mdouchement/logger"
)

// A Controller is an Iversion Of Control pattern used to init the server package.
type Controller struct {
	Version  string
	Logger   logger.Logger
	Registry registry.Registry
	Storage  storage.Backend
	//
	AccessKey string
	// CompletionDelay is how long a job stays in progress.
	CompletionDelay time.Duration
	// Expiration is how long a job is known after its creation.
	Expiration time.Duration
	// Now returns the current time, it defaults to time.Now.
	Now func() time.Time
}

// EchoEngine instantiates the wep server.
func EchoEngine(ctrl Controller) *echo.Echo {
	if ctrl.Now == nil {
		ctrl.Now = time.Now
	}

	engine := echo.New()
	engine.HideBanner = true
	engine.Use(middleware.Gzip())
	engine.Use(middlewarepkg.Logger(ctrl.Logger))

	engine.HTTPErrorHandler = middlewarepkg.NewHTTPErrorHandler(ctrl.Logger)

	engine.Pre(middleware.Rewrite(map[string]string{
		"/": "/version",
	}))

	//
	//
	//

	router := engine.Group("")

	// Generic handlers
	//
	router.GET("/version", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{
			"version": ctrl.Version,
		})
	})

	v1 := router.Group("/v1", middlewarepkg.Authenticate(CraftToken(ctrl.AccessKey)))

	// Vault
	//
	vault := vault{
		logger:   ctrl.Logger,
		registry: ctrl.Registry,
		storage:  ctrl.Storage,
	}
	v1.GET("/vaults", vault.List)
	v1.PUT("/vaults/:vault", vault.Create)
	v1.GET("/vaults/:vault", vault.Show)
	v1.DELETE("/vaults/:vault", vault.Delete)

	// Archive
	//
	archive := archive{
		logger:   ctrl.Logger,
		registry: ctrl.Registry,
		storage:  ctrl.Storage,
	}
	v1.POST("/vaults/:vault/archives", archive.Upload)
	v1.DELETE("/vaults/:vault/archives/:archive", archive.Delete)

	// Job
	//
	job := job{
		logger:   ctrl.Logger,
		registry: ctrl.Registry,
		storage:  ctrl.Storage,
		clock: clock{
			now:        ctrl.Now,
			delay:      ctrl.CompletionDelay,
			expiration: ctrl.Expiration,
		},
	}
	v1.GET("/vaults/:vault/jobs", job.List)
	v1.POST("/vaults/:vault/jobs", job.Create)
	v1.GET("/vaults/:vault/jobs/:job", job.Show)
	v1.GET("/vaults/:vault/jobs/:job/output", job.Output)

	return engine
}

// PrintRoutes prints the Echo engin exposed routes.
func PrintRoutes(e *echo.Echo) {
	ignored := map[string]bool{
		"":   true,
		".":  true,
		"/*": true,
	}

	routes := e.Routes()
	sort.Slice(routes, func(i int, j int) bool {
		return routes[i].Path < routes[j].Path
	})

	fmt.Println("Routes:")
	for _, route := range routes {
		if ignored[route.Path] {
			continue
		}
		fmt.Printf("%6s %s\n", route.Method, route.Path)
	}
}

// CraftToken returns the auth token for an access key.
func CraftToken(accessKey string) string {
	return "tk_" + accessKey
}

// A clock computes the lifecycle of the emulated jobs.
type clock struct {
	now        func() time.Time
	delay      time.Duration
	expiration time.Duration
}

// Expired returns true when the job should not be known anymore.
func (c clock) Expired(job *registry.Job) bool {
	return c.expiration > 0 && c.now().After(job.CreatedAt.Add(c.expiration))
}

// Status returns the status of the job and its completion date.
func (c clock) Status(job *registry.Job) (model.StatusCode, time.Time) {
	completion := job.CreatedAt.Add(c.delay)
	if c.now().Before(completion) {
		return model.InProgress, time.Time{}
	}
	return model.Succeeded, completion
}
