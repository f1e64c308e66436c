// Package server is a local emulator of the remote agent execution service.
// It accepts registration requests (reasoningEngines.create), resolves the
// uploaded descriptor to a graph through a descriptor.Catalog and serves the
// :query and :streamQuery APIs with a runner per registered engine.
package server

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hupe1980/agentengine/core"
	"github.com/hupe1980/agentengine/descriptor"
	"github.com/hupe1980/agentengine/graph"
	"github.com/hupe1980/agentengine/logging"
	"github.com/hupe1980/agentengine/runner"
)

// RunnerFactory creates the runner serving a registered graph.
type RunnerFactory func(g *graph.Graph) (*runner.Runner, error)

// Options configures a Server.
type Options struct {
	Logger logging.Logger
	// NewID generates engine and operation ids.
	NewID func() string
	// Now is the clock used for create times.
	Now func() time.Time
}

// Engine is a registered graph.
type Engine struct {
	ResourceName string
	Descriptor   *descriptor.Descriptor
	Graph        *graph.Graph
	CreateTime   time.Time

	runner *runner.Runner
}

// Server serves the emulated API. It is safe for concurrent use.
type Server struct {
	catalog *descriptor.Catalog
	runners RunnerFactory
	opts    Options
	router  *gin.Engine

	mu      sync.RWMutex
	engines map[string]*Engine
}

// New creates a server resolving entrypoints through catalog.
func New(catalog *descriptor.Catalog, runners RunnerFactory, optFns ...func(o *Options)) (*Server, error) {
	if catalog == nil {
		return nil, core.NewValidationError("catalog", nil, "catalog must not be nil")
	}
	if runners == nil {
		return nil, core.NewValidationError("runners", nil, "a runner factory is required")
	}

	opts := Options{
		Logger: logging.NoOpLogger{},
		NewID:  core.NewID,
		Now:    func() time.Time { return time.Now().UTC() },
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	opts.Logger = logging.WithComponent(opts.Logger, "server")

	s := &Server{
		catalog: catalog,
		runners: runners,
		opts:    opts,
		engines: map[string]*Engine{},
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.accessLog())

	v1 := r.Group("/v1/projects/:project/locations/:location")
	v1.POST("/reasoningEngines", s.handleRegister)
	v1.GET("/reasoningEngines", s.handleList)
	// The action segment is "{id}", "{id}:query" or "{id}:streamQuery".
	v1.GET("/reasoningEngines/:action", s.handleGet)
	v1.DELETE("/reasoningEngines/:action", s.handleDelete)
	v1.POST("/reasoningEngines/:action", s.handleInvoke)

	r.NoRoute(func(c *gin.Context) {
		writeError(c, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("unknown path %s", c.Request.URL.Path))
	})
	return r
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler { return s.router }

// Engines returns the registered resource names in sorted order.
func (s *Server) Engines() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.engines))
	for name := range s.engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Engine returns the engine registered under resourceName.
func (s *Server) Engine(resourceName string) (*Engine, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.engines[resourceName]
	return e, ok
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.opts.Logger.Debug("server.request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status_code", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

func parent(c *gin.Context) string {
	return fmt.Sprintf("projects/%s/locations/%s", c.Param("project"), c.Param("location"))
}

// operation mirrors the long running operation of reasoningEngines.create.
type operation struct {
	Name     string            `json:"name"`
	Done     bool              `json:"done"`
	Metadata operationMetadata `json:"metadata"`
	Response engineView        `json:"response"`
}

type operationMetadata struct {
	GenericMetadata struct {
		CreateTime time.Time `json:"createTime"`
	} `json:"genericMetadata"`
}

type engineView struct {
	Name        string                 `json:"name"`
	DisplayName string                 `json:"displayName"`
	Description string                 `json:"description,omitempty"`
	CreateTime  time.Time              `json:"createTime"`
	Spec        *descriptor.Descriptor `json:"spec,omitempty"`
}

func (e *Engine) view() engineView {
	return engineView{
		Name:        e.ResourceName,
		DisplayName: e.Descriptor.DisplayName,
		Description: e.Descriptor.Description,
		CreateTime:  e.CreateTime,
	}
}

func (s *Server) handleRegister(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
		return
	}

	d, archive, err := descriptor.DecodeRequest(body)
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
		return
	}
	if err := checkUpload(d, archive); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
		return
	}

	g, err := s.catalog.Graph(d)
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
		return
	}

	r, err := s.runners(g)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}

	e := &Engine{
		ResourceName: parent(c) + "/reasoningEngines/" + s.opts.NewID(),
		Descriptor:   d,
		Graph:        g,
		CreateTime:   s.opts.Now(),
		runner:       r,
	}

	s.mu.Lock()
	s.engines[e.ResourceName] = e
	s.mu.Unlock()

	s.opts.Logger.Info("server.register.completed", "resource_name", e.ResourceName, "display_name", d.DisplayName, "entrypoint", d.Entrypoint.String())

	op := operation{
		Name:     e.ResourceName + "/operations/" + s.opts.NewID(),
		Done:     true,
		Response: e.view(),
	}
	op.Metadata.GenericMetadata.CreateTime = e.CreateTime
	c.JSON(http.StatusOK, op)
}

// checkUpload verifies that the uploaded archive carries the entrypoint
// module and the requirements file the descriptor names.
func checkUpload(d *descriptor.Descriptor, archive []byte) error {
	if d.DisplayName == "" {
		return fmt.Errorf("display name must not be empty")
	}
	if !d.Framework.Valid() {
		return fmt.Errorf("unrecognised framework tag %q", d.Framework)
	}
	if len(archive) == 0 {
		return fmt.Errorf("source archive must not be empty")
	}
	module := strings.ReplaceAll(d.Entrypoint.Module, ".", "/") + ".py"
	if _, err := descriptor.ExtractFile(archive, module); err != nil {
		return fmt.Errorf("entrypoint module %s: %w", d.Entrypoint.Module, err)
	}
	if d.Requirements.File != "" {
		if _, err := descriptor.ExtractFile(archive, d.Requirements.File); err != nil {
			return fmt.Errorf("requirements file: %w", err)
		}
	}
	return nil
}

func (s *Server) handleList(c *gin.Context) {
	prefix := parent(c) + "/"

	s.mu.RLock()
	views := make([]engineView, 0, len(s.engines))
	for name, e := range s.engines {
		if strings.HasPrefix(name, prefix) {
			views = append(views, e.view())
		}
	}
	s.mu.RUnlock()

	sort.Slice(views, func(i, j int) bool { return views[i].Name < views[j].Name })
	c.JSON(http.StatusOK, gin.H{"reasoningEngines": views})
}

func (s *Server) handleGet(c *gin.Context) {
	e, ok := s.lookup(c, c.Param("action"))
	if !ok {
		return
	}
	v := e.view()
	v.Spec = e.Descriptor
	c.JSON(http.StatusOK, v)
}

func (s *Server) handleDelete(c *gin.Context) {
	e, ok := s.lookup(c, c.Param("action"))
	if !ok {
		return
	}

	s.mu.Lock()
	delete(s.engines, e.ResourceName)
	s.mu.Unlock()

	s.opts.Logger.Info("server.delete.completed", "resource_name", e.ResourceName)
	c.JSON(http.StatusOK, gin.H{"name": e.ResourceName + "/operations/" + s.opts.NewID(), "done": true})
}

func (s *Server) handleInvoke(c *gin.Context) {
	id, verb, found := strings.Cut(c.Param("action"), ":")
	if !found {
		writeError(c, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("unknown action %s", c.Param("action")))
		return
	}

	e, ok := s.lookup(c, id)
	if !ok {
		return
	}

	switch verb {
	case "query":
		s.handleQuery(c, e)
	case "streamQuery":
		s.handleStreamQuery(c, e)
	default:
		writeError(c, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("unknown verb %s", verb))
	}
}

func (s *Server) lookup(c *gin.Context, id string) (*Engine, bool) {
	name := parent(c) + "/reasoningEngines/" + id
	e, ok := s.Engine(name)
	if !ok {
		writeError(c, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("ReasoningEngine %s not found", name))
	}
	return e, ok
}
