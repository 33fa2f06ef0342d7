// Package di wires the application's components from configuration.
package di

import (
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/ValeryJL/InsanusChat-Backend/internal/agent"
	"github.com/ValeryJL/InsanusChat-Backend/internal/branch"
	"github.com/ValeryJL/InsanusChat-Backend/internal/hub"
	"github.com/ValeryJL/InsanusChat-Backend/internal/sandbox"
	"github.com/ValeryJL/InsanusChat-Backend/internal/store"
	"github.com/ValeryJL/InsanusChat-Backend/internal/tools"
	"github.com/ValeryJL/InsanusChat-Backend/internal/turn"
	"github.com/ValeryJL/InsanusChat-Backend/internal/ws"
	"github.com/ValeryJL/InsanusChat-Backend/pkg/config"
	"github.com/ValeryJL/InsanusChat-Backend/pkg/jwt"
	"github.com/ValeryJL/InsanusChat-Backend/pkg/logger"
)

// Container holds the application's wired dependencies. Every component
// receives its collaborators explicitly; nothing reads process-wide state.
type Container struct {
	Config *config.Config
	Logger *logger.Logger
	DB     *gorm.DB
	Redis  *redis.Client

	Store       store.Conversations
	Maintainer  *branch.Maintainer
	History     *branch.History
	Hub         *hub.Hub
	Registry    tools.Registry
	Executor    *sandbox.Executor
	Runner      *agent.Runner
	Coordinator *turn.Coordinator
	JWTService  *jwt.Service
	WSHandler   *ws.Handler
}

// New wires a container over the given database handle
func New(db *gorm.DB, cfg *config.Config, log *logger.Logger) (*Container, error) {
	c := &Container{
		Config: cfg,
		Logger: log,
		DB:     db,
	}

	var conversations store.Conversations = store.NewGormStore(db)
	if cfg.Redis.Enabled {
		c.Redis = redis.NewClient(&redis.Options{
			Addr: cfg.Redis.Addr,
			DB:   cfg.Redis.DB,
		})
		conversations = store.NewCachedStore(conversations, c.Redis, cfg.Redis.TTL, log)
	}
	c.Store = conversations

	c.Maintainer = branch.NewMaintainer(conversations, log)
	c.History = branch.NewHistory(conversations)
	c.Hub = hub.NewHub(cfg.Chat.BroadcastRetryWait, log)
	c.Registry = tools.NewGormRegistry(db, cfg.Cache.TTL)

	c.Executor = sandbox.NewExecutor(sandbox.Config{
		Timeout:        cfg.Sandbox.Timeout,
		PythonBin:      cfg.Sandbox.PythonBin,
		NodeBin:        cfg.Sandbox.NodeBin,
		WorkDir:        cfg.Sandbox.WorkDir,
		MaxOutputBytes: cfg.Sandbox.MaxOutputBytes,
	}, log)

	var decider agent.Decider = agent.EchoDecider{}
	if cfg.Agent.DeciderURL != "" {
		decider = agent.NewHTTPDecider(cfg.Agent.DeciderURL, cfg.Agent.DecideTimeout)
	}
	c.Runner = agent.NewRunner(decider, c.Registry, c.Executor, cfg.Agent.MaxIterations, log)

	c.Coordinator = turn.NewCoordinator(conversations, c.Maintainer, c.History, c.Hub, c.Runner, turn.Config{
		HistoryLimit: cfg.Chat.DefaultHistoryLimit,
		TurnTimeout:  cfg.Agent.TurnTimeout,
	}, log)

	c.JWTService = jwt.NewService(cfg.JWT.Secret, cfg.JWT.ExpiryHours)

	c.WSHandler = ws.NewHandler(conversations, c.History, c.Coordinator, c.Hub, ws.Config{
		IdleTimeout:    cfg.Chat.WSIdleTimeout,
		WriteTimeout:   cfg.Chat.WSWriteTimeout,
		MaxMessageSize: cfg.Chat.MaxMessageSize,
		HistoryLimit:   cfg.Chat.DefaultHistoryLimit,
		MaxHistory:     cfg.Chat.MaxHistoryLimit,
	}, log)

	return c, nil
}

// Close releases the container's external handles
func (c *Container) Close() error {
	if c.Redis != nil {
		return c.Redis.Close()
	}
	return nil
}
